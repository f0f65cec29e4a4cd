package extract

import (
	"fmt"
	"regexp"
	"strings"

	"apikb/internal/manifest"
)

// PythonExtractor handles FastAPI and Flask route declarations, pydantic and
// dataclass DTO shapes, and os.environ references.
type PythonExtractor struct{}

func (p *PythonExtractor) Language() manifest.Language { return manifest.LangPython }

var (
	pyRouteRe = regexp.MustCompile(`^\s*@(\w+)\.(get|post|put|delete|patch|head|options|route)\s*\((.*)$`)
	pyDefRe   = regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\((.*?)\)\s*(?:->\s*([\w\[\].]+))?\s*:`)

	pyClassRe     = regexp.MustCompile(`^class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	pyDataclassRe = regexp.MustCompile(`^\s*@dataclass`)
	pyFieldRe     = regexp.MustCompile(`^(\s+)(\w+)\s*:\s*([^=#]+?)\s*(?:=\s*(.+?))?\s*(?:#.*)?$`)

	pyAuthDecoratorRe = regexp.MustCompile(`^\s*@(?:\w+\.)?(login_required|jwt_required|auth_required|authenticated)\b`)
	pyRolesRe         = regexp.MustCompile(`^\s*@(?:\w+\.)?(?:roles_required|require_roles|roles_accepted)\s*\(([^)]*)\)`)

	pyEnvIndexRe = regexp.MustCompile(`os\.environ\[\s*["']([A-Za-z_][A-Za-z0-9_]*)["']\s*\]`)
	pyEnvGetRe   = regexp.MustCompile(`os\.(?:environ\.get|getenv)\(\s*["']([A-Za-z_][A-Za-z0-9_]*)["']\s*(?:,\s*(.+?))?\s*\)`)

	pyStringLitRe    = regexp.MustCompile(`^\s*(?:[rfb]*)?["']([^"']*)["']`)
	pyMethodsKwargRe = regexp.MustCompile(`methods\s*=\s*\[([^\]]*)\]`)
	pyRespModelRe    = regexp.MustCompile(`response_model\s*=\s*([\w.]+)`)
	pyDependsRe      = regexp.MustCompile(`Depends\s*\(`)

	pyFlaskParamRe = regexp.MustCompile(`<(?:(\w+):)?(\w+)>`)

	pyOptionalRe = regexp.MustCompile(`^Optional\[(.+)\]$`)

	pyFieldCallRe    = regexp.MustCompile(`Field\s*\((.*)\)`)
	pyConstraintKwRe = regexp.MustCompile(`(min_length|max_length|ge|le|gt|lt|min_items|max_items|regex|pattern)\s*=\s*([^,)\s]+)`)
)

// Extract scans Python source for route decorators, DTO class bodies, and
// environment references. Never returns an error; malformed constructs
// degrade to warnings.
func (p *PythonExtractor) Extract(relPath string, src []byte) (*Result, error) {
	res := &Result{}
	lines := splitLines(src)

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := pyRouteRe.FindStringSubmatch(line); m != nil {
			p.extractRoute(res, relPath, lines, i, m)
			continue
		}

		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			p.extractClass(res, relPath, lines, i, m)
			continue
		}

		p.extractEnv(res, relPath, line)
	}

	return res, nil
}

// extractRoute handles one @app.method(...) decorator anchor
func (p *PythonExtractor) extractRoute(res *Result, relPath string, lines []string, idx int, m []string) {
	verb, args := m[2], m[3]

	ep := manifest.EndpointInfo{
		SourceFile: relPath,
		Line:       idx + 1,
	}

	// Path: first positional argument. A non-literal first argument means the
	// path is assembled at runtime; keep the endpoint with a partial marker.
	if lit := pyStringLitRe.FindStringSubmatch(args); lit != nil {
		ep.Path = normalizeFlaskPath(lit[1], &ep)
	} else {
		ep.Path = PartialPath
		ep.Partial = true
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s:%d: route path is a runtime expression, recorded as partial", relPath, idx+1))
	}

	// Method: decorator verb, or methods=[...] kwarg for @app.route
	methods := []string{strings.ToUpper(verb)}
	if verb == "route" {
		methods = []string{"GET"}
		if mm := pyMethodsKwargRe.FindStringSubmatch(args); mm != nil {
			methods = methods[:0]
			for _, raw := range strings.Split(mm[1], ",") {
				v := strings.ToUpper(strings.Trim(strings.TrimSpace(raw), `"'`))
				if httpMethods[v] {
					methods = append(methods, v)
				}
			}
			if len(methods) == 0 {
				methods = []string{"GET"}
			}
		}
	}

	if rm := pyRespModelRe.FindStringSubmatch(args); rm != nil {
		name := rm[1]
		if dot := strings.LastIndex(name, "."); dot >= 0 {
			name = name[dot+1:]
		}
		ep.ResponseDTO = name
	}
	if pyDependsRe.MatchString(args) {
		ep.AuthRequired = true
	}

	// Scan adjacent decorators and the handler signature below the anchor
	for j := idx + 1; j < len(lines) && j < idx+8; j++ {
		next := lines[j]

		if pyAuthDecoratorRe.MatchString(next) {
			ep.AuthRequired = true
			continue
		}
		if rm := pyRolesRe.FindStringSubmatch(next); rm != nil {
			ep.AuthRequired = true
			for _, raw := range strings.Split(rm[1], ",") {
				role := strings.Trim(strings.TrimSpace(raw), `"'`)
				if role != "" {
					ep.Roles = append(ep.Roles, role)
				}
			}
			continue
		}

		if dm := pyDefRe.FindStringSubmatch(next); dm != nil {
			p.bindSignature(&ep, dm[2], dm[3])
			break
		}
	}

	for _, method := range methods {
		e := ep
		e.Method = method
		res.Endpoints = append(res.Endpoints, e)
	}
}

// bindSignature classifies handler parameters into path params, query params,
// and a request DTO reference, and takes the return annotation as the
// response DTO when response_model did not already name one.
func (p *PythonExtractor) bindSignature(ep *manifest.EndpointInfo, params, returns string) {
	pathNames := make(map[string]bool)
	for _, pm := range pathTemplateRe.FindAllStringSubmatch(ep.Path, -1) {
		pathNames[pm[1]] = true
	}

	for _, part := range splitTopLevel(params, ',') {
		part = strings.TrimSpace(part)
		if part == "" || part == "self" || part == "*" || strings.HasPrefix(part, "*") {
			continue
		}

		name := part
		annotation := ""
		deflt := ""
		if eq := indexTopLevel(part, '='); eq >= 0 {
			deflt = strings.TrimSpace(part[eq+1:])
			part = strings.TrimSpace(part[:eq])
			name = part
		}
		if colon := strings.Index(part, ":"); colon >= 0 {
			name = strings.TrimSpace(part[:colon])
			annotation = strings.TrimSpace(part[colon+1:])
		}

		// Dependency-injected parameters signal auth, not payload shape
		if strings.Contains(deflt, "Depends(") {
			ep.AuthRequired = true
			continue
		}
		if name == "request" || name == "response" || name == "db" || name == "session" {
			continue
		}

		required := deflt == ""
		if om := pyOptionalRe.FindStringSubmatch(annotation); om != nil {
			annotation = om[1]
			required = false
		}

		switch {
		case pathNames[name]:
			setParamType(ep.PathParams, name, annotation)
		case isTypeName(annotation):
			if ep.RequestDTO == "" {
				ep.RequestDTO = annotation
			}
		case annotation != "":
			ep.QueryParams = append(ep.QueryParams, manifest.ParamInfo{
				Name:     name,
				Type:     annotation,
				Required: required,
			})
		}
	}

	if ep.ResponseDTO == "" && isTypeName(returns) {
		ep.ResponseDTO = returns
	}
}

// extractClass handles pydantic models, marshmallow schemas, and dataclasses
func (p *PythonExtractor) extractClass(res *Result, relPath string, lines []string, idx int, m []string) {
	name, bases := m[1], m[2]

	isDto := strings.Contains(bases, "BaseModel") || strings.Contains(bases, "Schema")
	if !isDto && idx > 0 && pyDataclassRe.MatchString(lines[idx-1]) {
		isDto = true
	}
	if !isDto {
		return
	}

	dto := manifest.DtoSchema{
		Name:       name,
		Fields:     []manifest.DtoField{},
		SourceFile: relPath,
		Line:       idx + 1,
	}

	for j := idx + 1; j < len(lines); j++ {
		body := lines[j]
		trimmed := strings.TrimSpace(body)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		// Dedented line ends the class body; methods end the field block
		if !strings.HasPrefix(body, " ") && !strings.HasPrefix(body, "\t") {
			break
		}
		if strings.HasPrefix(trimmed, "def ") || strings.HasPrefix(trimmed, "async def ") || strings.HasPrefix(trimmed, "@") {
			break
		}

		fm := pyFieldRe.FindStringSubmatch(body)
		if fm == nil {
			continue
		}
		fieldName, fieldType, fieldDefault := fm[2], strings.TrimSpace(fm[3]), strings.TrimSpace(fm[4])
		if strings.HasPrefix(fieldName, "_") || fieldName == "class" {
			continue
		}

		field := manifest.DtoField{
			Name:     fieldName,
			Type:     fieldType,
			Required: fieldDefault == "",
		}
		if om := pyOptionalRe.FindStringSubmatch(fieldType); om != nil {
			field.Type = om[1]
			field.Required = false
		}

		if fc := pyFieldCallRe.FindStringSubmatch(fieldDefault); fc != nil {
			// Field(...) keeps the field required; Field(default) does not
			field.Required = strings.HasPrefix(strings.TrimSpace(fc[1]), "...")
			constraints := make(map[string]string)
			for _, cm := range pyConstraintKwRe.FindAllStringSubmatch(fc[1], -1) {
				key := cm[1]
				switch key {
				case "min_length", "ge", "gt", "min_items":
					constraints["min"] = cm[2]
				case "max_length", "le", "lt", "max_items":
					constraints["max"] = cm[2]
				case "regex", "pattern":
					constraints["pattern"] = strings.Trim(cm[2], `"'`)
				}
			}
			field.Constraints = normalizeConstraints(constraints)
		} else if fieldDefault != "" && fieldDefault != "None" {
			field.Default = strings.Trim(fieldDefault, `"'`)
		}

		dto.Fields = append(dto.Fields, field)
	}

	res.DTOs = append(res.DTOs, dto)
}

// extractEnv records os.environ / os.getenv references on one line
func (p *PythonExtractor) extractEnv(res *Result, relPath string, line string) {
	for _, m := range pyEnvIndexRe.FindAllStringSubmatch(line, -1) {
		res.EnvVars = append(res.EnvVars, manifest.EnvironmentVariable{
			Name:       m[1],
			SourceFile: relPath,
		})
	}
	for _, m := range pyEnvGetRe.FindAllStringSubmatch(line, -1) {
		ev := manifest.EnvironmentVariable{Name: m[1], SourceFile: relPath}
		if len(m) > 2 {
			ev.Default = strings.Trim(strings.TrimSpace(m[2]), `"'`)
			if ev.Default == "None" {
				ev.Default = ""
			}
		}
		res.EnvVars = append(res.EnvVars, ev)
	}
}

// normalizeFlaskPath rewrites Flask converter segments (<int:id>) into the
// canonical {id} template form and records the typed path parameters.
func normalizeFlaskPath(path string, ep *manifest.EndpointInfo) string {
	out := pyFlaskParamRe.ReplaceAllStringFunc(path, func(seg string) string {
		m := pyFlaskParamRe.FindStringSubmatch(seg)
		ep.PathParams = append(ep.PathParams, manifest.ParamInfo{
			Name:     m[2],
			Type:     m[1],
			Required: true,
		})
		return "{" + m[2] + "}"
	})
	// FastAPI-style {id} segments
	for _, m := range pathTemplateRe.FindAllStringSubmatch(out, -1) {
		if !hasParam(ep.PathParams, m[1]) {
			ep.PathParams = append(ep.PathParams, manifest.ParamInfo{
				Name:     m[1],
				Required: true,
			})
		}
	}
	return out
}

func hasParam(params []manifest.ParamInfo, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func setParamType(params []manifest.ParamInfo, name, typ string) {
	for i := range params {
		if params[i].Name == name && typ != "" {
			params[i].Type = typ
		}
	}
}

// splitTopLevel splits on sep, ignoring separators nested inside brackets or
// string quotes. Enough structure awareness for signature lists without a
// real parser.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// indexTopLevel returns the index of the first unnested occurrence of sep
func indexTopLevel(s string, sep byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			return i
		}
	}
	return -1
}
