package extract

import (
	"fmt"
	"regexp"
	"strings"

	"apikb/internal/manifest"
)

// JavaScriptExtractor handles Express/Fastify/Koa router calls, NestJS
// controller decorators, TypeScript interface/type/class DTO shapes, and
// process.env references. One strategy covers both JS and TS; the TS-only
// patterns simply never match plain JS.
type JavaScriptExtractor struct {
	lang manifest.Language
}

func (j *JavaScriptExtractor) Language() manifest.Language { return j.lang }

var (
	jsRouterCallRe = regexp.MustCompile(`\b(\w+)\.(get|post|put|delete|patch|head|options|all)\s*\((.*)$`)
	jsRouterVars   = map[string]bool{
		"app": true, "router": true, "server": true, "api": true,
		"fastify": true, "koa": true, "r": true, "routes": true,
	}

	nestControllerRe = regexp.MustCompile(`@Controller\s*\(\s*(?:["']([^"']*)["'])?\s*\)`)
	nestVerbRe       = regexp.MustCompile(`@(Get|Post|Put|Delete|Patch|Head|Options)\s*\(\s*(?:["']([^"']*)["'])?\s*\)`)
	nestGuardRe      = regexp.MustCompile(`@UseGuards\s*\(`)
	nestRolesRe      = regexp.MustCompile(`@Roles\s*\(([^)]*)\)`)
	nestBodyRe       = regexp.MustCompile(`@Body\s*\(\s*\)\s*\w+\s*:\s*(\w+)`)

	jsStringLitRe  = regexp.MustCompile(`^\s*["'` + "`" + `]([^"'` + "`" + `]*)["'` + "`" + `]`)
	jsColonParamRe = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

	tsInterfaceRe = regexp.MustCompile(`^(?:export\s+)?interface\s+(\w+)\s*(?:extends\s+[\w,\s]+)?\{?`)
	tsTypeRe      = regexp.MustCompile(`^(?:export\s+)?type\s+(\w+)\s*=\s*\{`)
	tsClassRe     = regexp.MustCompile(`^(?:export\s+)?class\s+(\w+)`)
	tsFieldRe     = regexp.MustCompile(`^\s*(?:readonly\s+)?(\w+)(\?)?\s*:\s*([^;=]+?)\s*;?\s*$`)

	cvOptionalRe = regexp.MustCompile(`@IsOptional\s*\(`)
	cvMinRe      = regexp.MustCompile(`@(?:Min|MinLength)\s*\(\s*(\d+)`)
	cvMaxRe      = regexp.MustCompile(`@(?:Max|MaxLength)\s*\(\s*(\d+)`)
	cvMatchesRe  = regexp.MustCompile(`@Matches\s*\(\s*/(.+?)/`)

	jsEnvDotRe   = regexp.MustCompile(`process\.env\.([A-Za-z_][A-Za-z0-9_]*)(?:\s*(?:\|\||\?\?)\s*["']([^"']*)["'])?`)
	jsEnvIndexRe = regexp.MustCompile(`process\.env\[\s*["']([A-Za-z_][A-Za-z0-9_]*)["']\s*\](?:\s*(?:\|\||\?\?)\s*["']([^"']*)["'])?`)

	jsAuthMiddlewareRe = regexp.MustCompile(`\b(requireAuth|authenticate|isAuthenticated|ensureAuth\w*|verifyToken|authMiddleware|passport\.authenticate)\b`)
)

// Extract scans JS/TS source for router-call and decorator anchors plus
// DTO-like type declarations. Never returns an error.
func (j *JavaScriptExtractor) Extract(relPath string, src []byte) (*Result, error) {
	res := &Result{}
	lines := splitLines(src)

	controllerPrefix := ""
	pendingAuth := false
	var pendingRoles []string

	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if m := nestControllerRe.FindStringSubmatch(line); m != nil {
			controllerPrefix = m[1]
			continue
		}
		if nestGuardRe.MatchString(line) {
			pendingAuth = true
		}
		if m := nestRolesRe.FindStringSubmatch(line); m != nil {
			pendingAuth = true
			for _, raw := range strings.Split(m[1], ",") {
				role := strings.Trim(strings.TrimSpace(raw), `"'`)
				if role != "" && !strings.Contains(role, ".") {
					pendingRoles = append(pendingRoles, role)
				}
			}
		}

		if m := nestVerbRe.FindStringSubmatch(line); m != nil {
			ep := manifest.EndpointInfo{
				Method:       strings.ToUpper(m[1]),
				Path:         normalizeExpressPath(joinRoutePaths(controllerPrefix, m[2])),
				SourceFile:   relPath,
				Line:         i + 1,
				AuthRequired: pendingAuth,
				Roles:        pendingRoles,
			}
			bindExpressParams(&ep)
			// @Body() parameter annotation on the handler below
			for k := i + 1; k < len(lines) && k < i+6; k++ {
				if bm := nestBodyRe.FindStringSubmatch(lines[k]); bm != nil {
					ep.RequestDTO = bm[1]
					break
				}
			}
			res.Endpoints = append(res.Endpoints, ep)
			pendingAuth = false
			pendingRoles = nil
			continue
		}

		if m := jsRouterCallRe.FindStringSubmatch(line); m != nil && jsRouterVars[m[1]] {
			j.extractRouterCall(res, relPath, i, m)
			continue
		}

		if m := tsInterfaceRe.FindStringSubmatch(line); m != nil && isTypeName(m[1]) {
			j.extractShape(res, relPath, lines, i, m[1])
			continue
		}
		if m := tsTypeRe.FindStringSubmatch(line); m != nil {
			j.extractShape(res, relPath, lines, i, m[1])
			continue
		}
		if m := tsClassRe.FindStringSubmatch(line); m != nil && isDtoName(m[1]) {
			j.extractShape(res, relPath, lines, i, m[1])
			continue
		}

		j.extractEnv(res, relPath, line)
	}

	return res, nil
}

// extractRouterCall handles app.get('/path', middleware..., handler) anchors
func (j *JavaScriptExtractor) extractRouterCall(res *Result, relPath string, idx int, m []string) {
	verb, args := m[2], m[3]
	if verb == "all" {
		verb = "get"
	}

	ep := manifest.EndpointInfo{
		Method:     strings.ToUpper(verb),
		SourceFile: relPath,
		Line:       idx + 1,
	}

	if lit := jsStringLitRe.FindStringSubmatch(args); lit != nil {
		ep.Path = normalizeExpressPath(lit[1])
		bindExpressParams(&ep)
	} else {
		ep.Path = PartialPath
		ep.Partial = true
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("%s:%d: route path is a runtime expression, recorded as partial", relPath, idx+1))
	}

	if jsAuthMiddlewareRe.MatchString(args) {
		ep.AuthRequired = true
	}

	res.Endpoints = append(res.Endpoints, ep)
}

// extractShape collects the typed fields of an interface/type/class body into
// a DTO schema. class-validator decorators on preceding lines contribute
// constraints.
func (j *JavaScriptExtractor) extractShape(res *Result, relPath string, lines []string, idx int, name string) {
	dto := manifest.DtoSchema{
		Name:       name,
		Fields:     []manifest.DtoField{},
		SourceFile: relPath,
		Line:       idx + 1,
	}

	depth := strings.Count(lines[idx], "{") - strings.Count(lines[idx], "}")
	opened := depth > 0
	pendingDecorators := ""

	for k := idx + 1; k < len(lines); k++ {
		line := lines[k]
		trimmed := strings.TrimSpace(line)

		if !opened {
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			opened = depth > 0
			continue
		}

		if strings.HasPrefix(trimmed, "@") {
			pendingDecorators += " " + trimmed
			continue
		}

		// Methods and constructors end the field block for classes
		if strings.Contains(trimmed, "(") && !strings.Contains(trimmed, ":") {
			pendingDecorators = ""
		} else if fm := tsFieldRe.FindStringSubmatch(line); fm != nil && depth == 1 {
			fieldName, optMark, fieldType := fm[1], fm[2], strings.TrimSpace(fm[3])
			required := optMark == "" && !cvOptionalRe.MatchString(pendingDecorators)
			if strings.HasSuffix(fieldType, "| null") || strings.HasSuffix(fieldType, "| undefined") {
				required = false
				fieldType = strings.TrimSpace(strings.Split(fieldType, "|")[0])
			}

			constraints := make(map[string]string)
			if cm := cvMinRe.FindStringSubmatch(pendingDecorators); cm != nil {
				constraints["min"] = cm[1]
			}
			if cm := cvMaxRe.FindStringSubmatch(pendingDecorators); cm != nil {
				constraints["max"] = cm[1]
			}
			if cm := cvMatchesRe.FindStringSubmatch(pendingDecorators); cm != nil {
				constraints["pattern"] = cm[1]
			}

			dto.Fields = append(dto.Fields, manifest.DtoField{
				Name:        fieldName,
				Type:        fieldType,
				Required:    required,
				Constraints: normalizeConstraints(constraints),
			})
			pendingDecorators = ""
		}

		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth <= 0 {
			break
		}
	}

	if len(dto.Fields) > 0 {
		res.DTOs = append(res.DTOs, dto)
	}
}

// extractEnv records process.env references on one line
func (j *JavaScriptExtractor) extractEnv(res *Result, relPath string, line string) {
	for _, m := range jsEnvDotRe.FindAllStringSubmatch(line, -1) {
		res.EnvVars = append(res.EnvVars, manifest.EnvironmentVariable{
			Name:       m[1],
			Default:    m[2],
			SourceFile: relPath,
		})
	}
	for _, m := range jsEnvIndexRe.FindAllStringSubmatch(line, -1) {
		res.EnvVars = append(res.EnvVars, manifest.EnvironmentVariable{
			Name:       m[1],
			Default:    m[2],
			SourceFile: relPath,
		})
	}
}

// normalizeExpressPath rewrites Express :id segments into the canonical {id}
// template form.
func normalizeExpressPath(path string) string {
	return jsColonParamRe.ReplaceAllString(path, "{$1}")
}

// bindExpressParams records {param} segments as required path parameters
func bindExpressParams(ep *manifest.EndpointInfo) {
	for _, m := range pathTemplateRe.FindAllStringSubmatch(ep.Path, -1) {
		if !hasParam(ep.PathParams, m[1]) {
			ep.PathParams = append(ep.PathParams, manifest.ParamInfo{Name: m[1], Required: true})
		}
	}
}
