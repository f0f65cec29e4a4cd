package vector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"apikb/internal/manifest"
)

// Chunk kinds stored in the index
const (
	KindEndpoint = "endpoint"
	KindDTO      = "dto"
	KindService  = "service"
)

// Chunk is one embeddable unit of manifest knowledge. Text renders the same
// bytes for the same manifest content, so re-indexing an unchanged manifest
// produces identical chunks.
type Chunk struct {
	ID       string // deterministic UUID derived from entity id and part
	EntityID string // owning entity, e.g. "endpoint:users:GET /users/{id}"
	Kind     string
	Service  string
	Text     string
	Tokens   int
}

// chunkNamespace seeds the deterministic chunk UUIDs
var chunkNamespace = uuid.MustParse("8f0c1f6e-4a2d-4f3b-9b61-2f84d90b6a17")

// EstimateTokens approximates the token count of a text. Four bytes per token
// is the usual planning ratio for code-heavy English.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// ChunkManifest renders every endpoint, DTO, and service summary in the
// manifest into chunks, splitting any rendering that exceeds maxTokens at
// line boundaries. Output order is deterministic: the manifest is normalized
// before rendering.
func ChunkManifest(pk *manifest.ProjectKnowledge, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = 512
	}

	var chunks []Chunk

	svcNames := make([]string, 0, len(pk.Services))
	for i := range pk.Services {
		svcNames = append(svcNames, pk.Services[i].Name)
	}
	sort.Strings(svcNames)

	for _, name := range svcNames {
		svc := pk.Service(name)

		chunks = appendChunks(chunks, manifest.ServiceEntityID(svc.Name), KindService, svc.Name,
			renderService(svc), maxTokens)

		for i := range svc.Endpoints {
			ep := &svc.Endpoints[i]
			chunks = appendChunks(chunks, manifest.EndpointEntityID(svc.Name, ep), KindEndpoint, svc.Name,
				renderEndpoint(svc.Name, ep, svc), maxTokens)
		}
		for i := range svc.DTOs {
			dto := &svc.DTOs[i]
			chunks = appendChunks(chunks, manifest.DtoEntityID(svc.Name, dto.Name), KindDTO, svc.Name,
				renderDTO(svc.Name, dto), maxTokens)
		}
	}

	return chunks
}

// appendChunks splits text when needed and assigns stable chunk IDs
func appendChunks(chunks []Chunk, entityID, kind, service, text string, maxTokens int) []Chunk {
	for part, piece := range splitByTokens(text, maxTokens) {
		id := uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", entityID, part))).String()
		chunks = append(chunks, Chunk{
			ID:       id,
			EntityID: entityID,
			Kind:     kind,
			Service:  service,
			Text:     piece,
			Tokens:   EstimateTokens(piece),
		})
	}
	return chunks
}

// splitByTokens breaks text into pieces of at most maxTokens estimated
// tokens, preferring line boundaries. A single line that alone exceeds the
// budget is hard-split at the token boundary so no piece ever exceeds the
// embedding model's input limit.
func splitByTokens(text string, maxTokens int) []string {
	if EstimateTokens(text) <= maxTokens {
		return []string{text}
	}

	var pieces []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if EstimateTokens(line) > maxTokens {
			flush()
			pieces = append(pieces, hardSplitLine(line, maxTokens)...)
			continue
		}
		if cur.Len() > 0 && EstimateTokens(cur.String())+EstimateTokens(line)+1 > maxTokens {
			flush()
		}
		cur.WriteString(line)
		cur.WriteString("\n")
	}
	flush()
	return pieces
}

// hardSplitLine cuts one oversized line into byte-bounded segments, each
// estimating to at most maxTokens
func hardSplitLine(line string, maxTokens int) []string {
	step := maxTokens * 4
	var out []string
	for len(line) > step {
		out = append(out, line[:step])
		line = line[step:]
	}
	if len(line) > 0 {
		out = append(out, line)
	}
	return out
}

// renderEndpoint produces the embeddable description of one endpoint
func renderEndpoint(service string, ep *manifest.EndpointInfo, svc *manifest.ServiceInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Endpoint: %s %s\n", ep.Method, ep.Path)
	fmt.Fprintf(&b, "Service: %s\n", service)
	if ep.Partial {
		b.WriteString("Route path is dynamic and only partially known.\n")
	}
	if ep.AuthRequired {
		if len(ep.Roles) > 0 {
			fmt.Fprintf(&b, "Authentication required, roles: %s\n", strings.Join(ep.Roles, ", "))
		} else {
			b.WriteString("Authentication required.\n")
		}
	}
	for _, p := range ep.PathParams {
		fmt.Fprintf(&b, "Path parameter: %s%s\n", p.Name, paramSuffix(p))
	}
	for _, p := range ep.QueryParams {
		fmt.Fprintf(&b, "Query parameter: %s%s\n", p.Name, paramSuffix(p))
	}
	if ep.RequestDTO != "" {
		fmt.Fprintf(&b, "Request body: %s\n", ep.RequestDTO)
		if dto := svc.DTO(ep.RequestDTO); dto != nil {
			writeFields(&b, dto)
		}
	}
	if ep.ResponseDTO != "" {
		fmt.Fprintf(&b, "Response: %s\n", ep.ResponseDTO)
		if dto := svc.DTO(ep.ResponseDTO); dto != nil {
			writeFields(&b, dto)
		}
	}
	fmt.Fprintf(&b, "Defined in %s:%d\n", ep.SourceFile, ep.Line)
	return b.String()
}

// renderDTO produces the embeddable description of one DTO schema
func renderDTO(service string, dto *manifest.DtoSchema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schema: %s\n", dto.Name)
	fmt.Fprintf(&b, "Service: %s\n", service)
	writeFields(&b, dto)
	fmt.Fprintf(&b, "Defined in %s:%d\n", dto.SourceFile, dto.Line)
	return b.String()
}

// renderService produces a compact summary of one service
func renderService(svc *manifest.ServiceInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s (root %s)\n", svc.Name, svc.Root)
	fmt.Fprintf(&b, "Endpoints: %d, schemas: %d\n", len(svc.Endpoints), len(svc.DTOs))
	for i := range svc.Endpoints {
		ep := &svc.Endpoints[i]
		fmt.Fprintf(&b, "  %s %s\n", ep.Method, ep.Path)
	}
	for i := range svc.DTOs {
		fmt.Fprintf(&b, "  schema %s\n", svc.DTOs[i].Name)
	}
	return b.String()
}

func writeFields(b *strings.Builder, dto *manifest.DtoSchema) {
	for _, f := range dto.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(b, "  field %s: %s (%s)", f.Name, f.Type, req)
		if len(f.Constraints) > 0 {
			keys := make([]string, 0, len(f.Constraints))
			for k := range f.Constraints {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, k+"="+f.Constraints[k])
			}
			fmt.Fprintf(b, " [%s]", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
}

func paramSuffix(p manifest.ParamInfo) string {
	var parts []string
	if p.Type != "" {
		parts = append(parts, p.Type)
	}
	if p.Required {
		parts = append(parts, "required")
	} else {
		parts = append(parts, "optional")
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
