package types

import (
	"fmt"
	"strings"
)

// PatchKind classifies a boundary patch of a partition mesh.
type PatchKind uint8

const (
	PatchPhysical  PatchKind = iota // wall, inlet, ... not coupled
	PatchProcessor                  // coupled to another rank, may carry a transform
	PatchCyclic                     // coupled to a patch of the same rank through a transform
)

var patchKindNames = [...]string{"physical", "processor", "cyclic"}

func (pk PatchKind) String() string {
	if int(pk) < len(patchKindNames) {
		return patchKindNames[pk]
	}
	return fmt.Sprintf("PatchKind(%d)", pk)
}

// Coupled reports whether values on the patch have a partner elsewhere.
func (pk PatchKind) Coupled() bool {
	return pk == PatchProcessor || pk == PatchCyclic
}

var PatchKindNameMap = map[string]PatchKind{
	"physical":  PatchPhysical,
	"wall":      PatchPhysical,
	"patch":     PatchPhysical,
	"processor": PatchProcessor,
	"cyclic":    PatchCyclic,
	"periodic":  PatchCyclic,
}

// ParsePatchKind reads the kind from tokens like "Cyclic" or "wall-left".
func ParsePatchKind(token string) (PatchKind, error) {
	name := strings.ToLower(token)
	if i := strings.IndexByte(name, '-'); i >= 0 {
		name = name[:i]
	}
	if pk, ok := PatchKindNameMap[name]; ok {
		return pk, nil
	}
	return PatchPhysical, fmt.Errorf("unknown patch kind %q", token)
}
