package manifest

import (
	"reflect"
	"sort"
)

// Delta is the structural difference between two manifests. Identity is the
// entity id: an endpoint whose method or path changed shows up as one
// removal plus one addition, while a changed body on the same identity shows
// up under Changed.
type Delta struct {
	ServicesAdded   []string `json:"servicesAdded,omitempty"`
	ServicesRemoved []string `json:"servicesRemoved,omitempty"`

	EndpointsAdded   []string `json:"endpointsAdded,omitempty"`
	EndpointsRemoved []string `json:"endpointsRemoved,omitempty"`
	EndpointsChanged []string `json:"endpointsChanged,omitempty"`

	DTOsAdded   []string `json:"dtosAdded,omitempty"`
	DTOsRemoved []string `json:"dtosRemoved,omitempty"`
	DTOsChanged []string `json:"dtosChanged,omitempty"`

	EnvAdded   []string `json:"envAdded,omitempty"`
	EnvRemoved []string `json:"envRemoved,omitempty"`
}

// Empty reports whether the delta carries no differences
func (d *Delta) Empty() bool {
	return len(d.ServicesAdded) == 0 && len(d.ServicesRemoved) == 0 &&
		len(d.EndpointsAdded) == 0 && len(d.EndpointsRemoved) == 0 && len(d.EndpointsChanged) == 0 &&
		len(d.DTOsAdded) == 0 && len(d.DTOsRemoved) == 0 && len(d.DTOsChanged) == 0 &&
		len(d.EnvAdded) == 0 && len(d.EnvRemoved) == 0
}

// Diff computes the structural delta from old to new. Source file and line
// positions are ignored when deciding whether an entity changed, so moving a
// handler within a file does not register as drift.
func Diff(oldPK, newPK *ProjectKnowledge) *Delta {
	d := &Delta{}

	oldSvcs := serviceSet(oldPK)
	newSvcs := serviceSet(newPK)
	for name := range newSvcs {
		if !oldSvcs[name] {
			d.ServicesAdded = append(d.ServicesAdded, name)
		}
	}
	for name := range oldSvcs {
		if !newSvcs[name] {
			d.ServicesRemoved = append(d.ServicesRemoved, name)
		}
	}

	oldEps := endpointMap(oldPK)
	newEps := endpointMap(newPK)
	for id, ep := range newEps {
		prev, ok := oldEps[id]
		switch {
		case !ok:
			d.EndpointsAdded = append(d.EndpointsAdded, id)
		case !sameEndpoint(prev, ep):
			d.EndpointsChanged = append(d.EndpointsChanged, id)
		}
	}
	for id := range oldEps {
		if _, ok := newEps[id]; !ok {
			d.EndpointsRemoved = append(d.EndpointsRemoved, id)
		}
	}

	oldDTOs := dtoMap(oldPK)
	newDTOs := dtoMap(newPK)
	for id, dto := range newDTOs {
		prev, ok := oldDTOs[id]
		switch {
		case !ok:
			d.DTOsAdded = append(d.DTOsAdded, id)
		case !sameDTO(prev, dto):
			d.DTOsChanged = append(d.DTOsChanged, id)
		}
	}
	for id := range oldDTOs {
		if _, ok := newDTOs[id]; !ok {
			d.DTOsRemoved = append(d.DTOsRemoved, id)
		}
	}

	oldEnv := envSet(oldPK)
	newEnv := envSet(newPK)
	for name := range newEnv {
		if !oldEnv[name] {
			d.EnvAdded = append(d.EnvAdded, name)
		}
	}
	for name := range oldEnv {
		if !newEnv[name] {
			d.EnvRemoved = append(d.EnvRemoved, name)
		}
	}

	for _, s := range [][]string{
		d.ServicesAdded, d.ServicesRemoved,
		d.EndpointsAdded, d.EndpointsRemoved, d.EndpointsChanged,
		d.DTOsAdded, d.DTOsRemoved, d.DTOsChanged,
		d.EnvAdded, d.EnvRemoved,
	} {
		sort.Strings(s)
	}

	return d
}

func serviceSet(pk *ProjectKnowledge) map[string]bool {
	out := make(map[string]bool, len(pk.Services))
	for i := range pk.Services {
		out[pk.Services[i].Name] = true
	}
	return out
}

func endpointMap(pk *ProjectKnowledge) map[string]*EndpointInfo {
	out := make(map[string]*EndpointInfo)
	for i := range pk.Services {
		svc := &pk.Services[i]
		for j := range svc.Endpoints {
			ep := &svc.Endpoints[j]
			out[EndpointEntityID(svc.Name, ep)] = ep
		}
	}
	return out
}

func dtoMap(pk *ProjectKnowledge) map[string]*DtoSchema {
	out := make(map[string]*DtoSchema)
	for i := range pk.Services {
		svc := &pk.Services[i]
		for j := range svc.DTOs {
			dto := &svc.DTOs[j]
			out[DtoEntityID(svc.Name, dto.Name)] = dto
		}
	}
	return out
}

func envSet(pk *ProjectKnowledge) map[string]bool {
	out := make(map[string]bool, len(pk.Environment))
	for _, ev := range pk.Environment {
		out[ev.Name] = true
	}
	return out
}

func sameEndpoint(a, b *EndpointInfo) bool {
	ac, bc := *a, *b
	ac.SourceFile, ac.Line = "", 0
	bc.SourceFile, bc.Line = "", 0
	return reflect.DeepEqual(ac, bc)
}

func sameDTO(a, b *DtoSchema) bool {
	ac, bc := *a, *b
	ac.SourceFile, ac.Line = "", 0
	bc.SourceFile, bc.Line = "", 0
	return reflect.DeepEqual(ac, bc)
}
