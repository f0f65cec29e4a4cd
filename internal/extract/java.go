package extract

import (
	"regexp"
	"strings"

	"apikb/internal/manifest"
)

// JavaExtractor handles Spring MVC and JAX-RS route annotations, POJO/record
// DTO shapes with bean-validation constraints, and System.getenv references.
type JavaExtractor struct{}

func (j *JavaExtractor) Language() manifest.Language { return manifest.LangJava }

var (
	javaClassMappingRe = regexp.MustCompile(`@RequestMapping\s*\(\s*(?:value\s*=\s*)?"([^"]*)"`)
	javaVerbMappingRe  = regexp.MustCompile(`@(Get|Post|Put|Delete|Patch)Mapping\s*(?:\(\s*(?:value\s*=\s*|path\s*=\s*)?"([^"]*)")?`)
	javaReqMappingRe   = regexp.MustCompile(`@RequestMapping\s*\(([^)]*method\s*=\s*RequestMethod\.(\w+)[^)]*)\)`)
	javaJaxPathRe      = regexp.MustCompile(`@Path\s*\(\s*"([^"]*)"\s*\)`)
	javaJaxVerbRe      = regexp.MustCompile(`@(GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS)\b`)

	javaMethodSigRe = regexp.MustCompile(`(?:public|protected)\s+(?:static\s+)?([\w<>,.\[\]\s]+?)\s+(\w+)\s*\(`)

	javaPathVarRe  = regexp.MustCompile(`@PathVariable(?:\s*\(\s*(?:value\s*=\s*|name\s*=\s*)?"(\w+)"[^)]*\))?\s+(?:@\w+\s+)*([\w<>.]+)\s+(\w+)`)
	javaReqParamRe = regexp.MustCompile(`@RequestParam(?:\s*\(([^)]*)\))?\s+(?:@\w+\s+)*([\w<>.]+)\s+(\w+)`)
	javaReqBodyRe  = regexp.MustCompile(`@(?:RequestBody|Valid\s+@RequestBody|RequestBody\s+@Valid)\s+(?:@\w+\s+)*([\w<>.]+)\s+\w+`)
	javaRequiredKw = regexp.MustCompile(`required\s*=\s*false`)

	javaPreAuthRe = regexp.MustCompile(`@PreAuthorize\s*\(\s*"([^"]*)"\s*\)`)
	javaSecuredRe = regexp.MustCompile(`@(?:Secured|RolesAllowed)\s*\(\s*\{?([^)}]*)\}?\s*\)`)
	javaHasRoleRe = regexp.MustCompile(`has(?:Any)?(?:Role|Authority)\s*\(\s*'([^']*)'`)

	javaClassDeclRe = regexp.MustCompile(`(?:public\s+)?(?:final\s+)?class\s+(\w+)`)
	javaRecordRe    = regexp.MustCompile(`(?:public\s+)?record\s+(\w+)\s*\(([^)]*)\)`)
	javaFieldDeclRe = regexp.MustCompile(`^\s*(?:private|protected|public)\s+(?:final\s+)?([\w<>,.\[\]]+)\s+(\w+)\s*(?:=\s*([^;]+))?;`)

	javaNotNullRe = regexp.MustCompile(`@(?:NotNull|NotBlank|NotEmpty)\b`)
	javaSizeRe    = regexp.MustCompile(`@Size\s*\(([^)]*)\)`)
	javaMinRe     = regexp.MustCompile(`@(?:Min|DecimalMin)\s*\(\s*(?:value\s*=\s*)?"?([-\d.]+)"?`)
	javaMaxRe     = regexp.MustCompile(`@(?:Max|DecimalMax)\s*\(\s*(?:value\s*=\s*)?"?([-\d.]+)"?`)
	javaPatternRe = regexp.MustCompile(`@Pattern\s*\(\s*regexp\s*=\s*"([^"]*)"`)
	javaSizeKwRe  = regexp.MustCompile(`(min|max)\s*=\s*(\d+)`)

	javaEnvRe = regexp.MustCompile(`System\.getenv\(\s*"([A-Za-z_][A-Za-z0-9_]*)"\s*\)`)

	javaSpringPathVarRe = regexp.MustCompile(`\{(\w+)(?::[^}]*)?\}`)

	javaDtoSuffixes = []string{"Dto", "DTO", "Request", "Response", "Payload", "Body"}
)

// Extract scans Java source. Class-level @RequestMapping / @Path prefixes are
// applied to every method-level mapping that follows them in the same file.
func (j *JavaExtractor) Extract(relPath string, src []byte) (*Result, error) {
	res := &Result{}
	lines := splitLines(src)

	basePath := ""
	for _, line := range lines {
		// Class-level prefix: the first @RequestMapping/@Path that appears
		// before any class declaration
		if m := javaClassMappingRe.FindStringSubmatch(line); m != nil {
			basePath = m[1]
		} else if m := javaJaxPathRe.FindStringSubmatch(line); m != nil {
			basePath = m[1]
		}
		if javaClassDeclRe.MatchString(line) {
			break
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := javaVerbMappingRe.FindStringSubmatch(line); m != nil {
			j.extractEndpoint(res, relPath, lines, i, strings.ToUpper(m[1]), m[2], basePath)
			continue
		}
		if m := javaReqMappingRe.FindStringSubmatch(line); m != nil {
			sub := ""
			if vm := javaClassMappingRe.FindStringSubmatch(line); vm != nil {
				sub = vm[1]
			}
			// Only method-level mappings carry method=; the class-level prefix
			// was consumed above
			j.extractEndpoint(res, relPath, lines, i, strings.ToUpper(m[2]), sub, basePath)
			continue
		}
		if m := javaJaxVerbRe.FindStringSubmatch(line); m != nil && strings.TrimSpace(line) == "@"+m[1] {
			sub := ""
			for k := i + 1; k < len(lines) && k < i+4; k++ {
				if pm := javaJaxPathRe.FindStringSubmatch(lines[k]); pm != nil {
					sub = pm[1]
					break
				}
				if javaMethodSigRe.MatchString(lines[k]) {
					break
				}
			}
			// JAX-RS also allows @Path above the verb
			for k := i - 1; k >= 0 && k > i-3; k-- {
				if pm := javaJaxPathRe.FindStringSubmatch(lines[k]); pm != nil && sub == "" {
					sub = pm[1]
				}
			}
			j.extractEndpoint(res, relPath, lines, i, m[1], sub, basePath)
			continue
		}

		if m := javaRecordRe.FindStringSubmatch(line); m != nil {
			j.extractRecord(res, relPath, i, m)
			continue
		}
		if m := javaClassDeclRe.FindStringSubmatch(line); m != nil && isDtoName(m[1]) {
			j.extractClassFields(res, relPath, lines, i, m[1])
			continue
		}

		for _, em := range javaEnvRe.FindAllStringSubmatch(line, -1) {
			res.EnvVars = append(res.EnvVars, manifest.EnvironmentVariable{
				Name:       em[1],
				SourceFile: relPath,
			})
		}
	}

	return res, nil
}

// extractEndpoint builds one EndpointInfo from a method-level mapping anchor
// and the handler signature that follows it.
func (j *JavaExtractor) extractEndpoint(res *Result, relPath string, lines []string, idx int, method, subPath, basePath string) {
	ep := manifest.EndpointInfo{
		Method:     method,
		Path:       joinRoutePaths(basePath, subPath),
		SourceFile: relPath,
		Line:       idx + 1,
	}

	for _, m := range javaSpringPathVarRe.FindAllStringSubmatch(ep.Path, -1) {
		ep.PathParams = append(ep.PathParams, manifest.ParamInfo{Name: m[1], Required: true})
	}
	// Strip regex constraints from {id:[0-9]+} style segments
	ep.Path = javaSpringPathVarRe.ReplaceAllString(ep.Path, "{$1}")

	// Security annotations sit next to the mapping
	for k := idx - 3; k <= idx+3; k++ {
		if k < 0 || k >= len(lines) || k == idx {
			continue
		}
		j.applyAuth(&ep, lines[k])
	}
	j.applyAuth(&ep, lines[idx])

	// Handler signature: gather until the parameter list closes
	sig := ""
	for k := idx; k < len(lines) && k < idx+12; k++ {
		if sm := javaMethodSigRe.FindStringSubmatch(lines[k]); sm != nil || sig != "" {
			if sig == "" && sm != nil {
				retType := strings.TrimSpace(sm[1])
				ep.ResponseDTO = unwrapResponseType(retType)
			}
			sig += lines[k] + " "
			if strings.Contains(lines[k], ")") {
				break
			}
		}
	}

	if sig != "" {
		for _, m := range javaPathVarRe.FindAllStringSubmatch(sig, -1) {
			name := m[1]
			if name == "" {
				name = m[3]
			}
			setParamType(ep.PathParams, name, m[2])
			if !hasParam(ep.PathParams, name) {
				ep.PathParams = append(ep.PathParams, manifest.ParamInfo{Name: name, Type: m[2], Required: true})
			}
		}
		for _, m := range javaReqParamRe.FindAllStringSubmatch(sig, -1) {
			ep.QueryParams = append(ep.QueryParams, manifest.ParamInfo{
				Name:     m[3],
				Type:     m[2],
				Required: !javaRequiredKw.MatchString(m[1]),
			})
		}
		if m := javaReqBodyRe.FindStringSubmatch(sig); m != nil {
			ep.RequestDTO = baseTypeName(m[1])
		}
	}

	res.Endpoints = append(res.Endpoints, ep)
}

// applyAuth records security annotations on a line into the endpoint
func (j *JavaExtractor) applyAuth(ep *manifest.EndpointInfo, line string) {
	if m := javaPreAuthRe.FindStringSubmatch(line); m != nil {
		ep.AuthRequired = true
		for _, rm := range javaHasRoleRe.FindAllStringSubmatch(m[1], -1) {
			ep.Roles = appendUnique(ep.Roles, rm[1])
		}
	}
	if m := javaSecuredRe.FindStringSubmatch(line); m != nil {
		ep.AuthRequired = true
		for _, raw := range strings.Split(m[1], ",") {
			role := strings.Trim(strings.TrimSpace(raw), `"`)
			role = strings.TrimPrefix(role, "ROLE_")
			if role != "" {
				ep.Roles = appendUnique(ep.Roles, role)
			}
		}
	}
}

// extractRecord turns a Java record declaration into a DTO schema
func (j *JavaExtractor) extractRecord(res *Result, relPath string, idx int, m []string) {
	name, paramList := m[1], m[2]
	if !isDtoName(name) && len(strings.TrimSpace(paramList)) == 0 {
		return
	}

	dto := manifest.DtoSchema{
		Name:       name,
		Fields:     []manifest.DtoField{},
		SourceFile: relPath,
		Line:       idx + 1,
	}

	for _, comp := range splitTopLevel(paramList, ',') {
		comp = strings.TrimSpace(comp)
		if comp == "" {
			continue
		}
		constraints, required := javaConstraints(comp)
		// Strip annotations, leaving "Type name"
		for strings.HasPrefix(comp, "@") {
			if sp := strings.IndexAny(comp, " \t"); sp >= 0 {
				comp = strings.TrimSpace(comp[sp+1:])
			} else {
				comp = ""
				break
			}
		}
		fields := strings.Fields(comp)
		if len(fields) < 2 {
			continue
		}
		dto.Fields = append(dto.Fields, manifest.DtoField{
			Name:        fields[len(fields)-1],
			Type:        strings.Join(fields[:len(fields)-1], " "),
			Required:    required,
			Constraints: constraints,
		})
	}

	res.DTOs = append(res.DTOs, dto)
}

// extractClassFields collects private field declarations of a DTO-named class
func (j *JavaExtractor) extractClassFields(res *Result, relPath string, lines []string, idx int, name string) {
	dto := manifest.DtoSchema{
		Name:       name,
		Fields:     []manifest.DtoField{},
		SourceFile: relPath,
		Line:       idx + 1,
	}

	depth := 0
	opened := false
	pendingAnnotations := ""
	for k := idx; k < len(lines); k++ {
		line := lines[k]
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if strings.Contains(line, "{") {
			opened = true
		}
		if opened && depth <= 0 {
			break
		}
		if k == idx {
			continue
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "@") {
			pendingAnnotations += " " + trimmed
			continue
		}

		if m := javaFieldDeclRe.FindStringSubmatch(line); m != nil && depth == 1 {
			constraints, required := javaConstraints(pendingAnnotations)
			field := manifest.DtoField{
				Name:        m[2],
				Type:        m[1],
				Required:    required,
				Constraints: constraints,
			}
			if m[3] != "" {
				field.Default = strings.Trim(strings.TrimSpace(m[3]), `"`)
			}
			dto.Fields = append(dto.Fields, field)
		}
		pendingAnnotations = ""
	}

	if len(dto.Fields) > 0 {
		res.DTOs = append(res.DTOs, dto)
	}
}

// javaConstraints parses bean-validation annotations into the canonical
// constraint map and a required flag.
func javaConstraints(annotations string) (map[string]string, bool) {
	constraints := make(map[string]string)
	required := javaNotNullRe.MatchString(annotations)

	if m := javaSizeRe.FindStringSubmatch(annotations); m != nil {
		for _, kw := range javaSizeKwRe.FindAllStringSubmatch(m[1], -1) {
			constraints[kw[1]] = kw[2]
		}
	}
	if m := javaMinRe.FindStringSubmatch(annotations); m != nil {
		constraints["min"] = m[1]
	}
	if m := javaMaxRe.FindStringSubmatch(annotations); m != nil {
		constraints["max"] = m[1]
	}
	if m := javaPatternRe.FindStringSubmatch(annotations); m != nil {
		constraints["pattern"] = m[1]
	}

	return normalizeConstraints(constraints), required
}

// unwrapResponseType extracts the DTO name from common wrapper return types
// (ResponseEntity<X>, Optional<X>, List<X>, Mono/Flux<X>).
func unwrapResponseType(retType string) string {
	retType = strings.TrimSpace(retType)
	for {
		open := strings.Index(retType, "<")
		if open < 0 {
			break
		}
		close := strings.LastIndex(retType, ">")
		if close < open {
			break
		}
		retType = strings.TrimSpace(retType[open+1 : close])
	}
	retType = baseTypeName(retType)
	if !isTypeName(retType) || isJavaBuiltin(retType) {
		return ""
	}
	return retType
}

func baseTypeName(t string) string {
	if dot := strings.LastIndex(t, "."); dot >= 0 {
		t = t[dot+1:]
	}
	return strings.TrimSuffix(t, "[]")
}

var javaBuiltins = map[string]bool{
	"String": true, "Integer": true, "Long": true, "Double": true,
	"Float": true, "Boolean": true, "Object": true, "Void": true,
	"Map": true, "List": true, "Set": true, "ResponseEntity": true,
}

func isJavaBuiltin(name string) bool {
	return javaBuiltins[name]
}

func isDtoName(name string) bool {
	for _, suffix := range javaDtoSuffixes {
		if strings.HasSuffix(name, suffix) && name != suffix {
			return true
		}
	}
	return false
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
