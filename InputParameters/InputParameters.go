package InputParameters

import (
	"fmt"
	"math"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/meshcomm/decompose"
	"github.com/notargets/meshcomm/distribute"
	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/wavefront"
)

// Parameters of a wall distance run, read from a YAML input file.
type WallDistParameters struct {
	Title string `json:"Title"`
	// Block cell counts and extents
	NX int        `json:"NX"`
	NY int        `json:"NY"`
	NZ int        `json:"NZ"`
	L  [3]float64 `json:"L"`
	// Cyclic min/max patches along x, y and z. Flags rather than axis
	// names, YAML reads a bare y or n as a bool.
	Cyclic [3]bool `json:"Cyclic"`
	// Non zero bends y into a sector of that many degrees
	SectorAngle float64 `json:"SectorAngle"`
	InnerRadius float64 `json:"InnerRadius"`

	NProcs          int     `json:"NProcs"`
	Method          string  `json:"Method"`
	Splits          [3]int  `json:"Splits"`
	Objective       string  `json:"Objective"`
	ImbalanceFactor float32 `json:"ImbalanceFactor"`

	WallPatches []string         `json:"WallPatches"`
	Wavefront   wavefront.Config `json:"Wavefront"`
	CommMode    string           `json:"CommMode"`
}

func NewWallDistParameters() *WallDistParameters {
	opts := decompose.DefaultOptions()
	return &WallDistParameters{
		NX: 10, NY: 10, NZ: 1,
		L:               [3]float64{1, 1, 0.1},
		NProcs:          1,
		Method:          "simple",
		Objective:       opts.Objective,
		ImbalanceFactor: opts.ImbalanceFactor,
		WallPatches:     []string{"xmin"},
		Wavefront:       wavefront.DefaultConfig(),
		CommMode:        distribute.NonBlocking.String(),
	}
}

// Parse overlays data on the current values, unset keys keep them.
func (ip *WallDistParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.Validate()
}

func (ip *WallDistParameters) Validate() error {
	if ip.NProcs < 1 {
		return fmt.Errorf("NProcs must be at least 1, have %d", ip.NProcs)
	}
	if len(ip.WallPatches) == 0 {
		return fmt.Errorf("no WallPatches given")
	}
	if _, err := ip.Mode(); err != nil {
		return err
	}
	_, err := ip.BlockSpec()
	return err
}

func (ip *WallDistParameters) BlockSpec() (bs mesh.BlockSpec, err error) {
	bs = mesh.BlockSpec{
		NX: ip.NX, NY: ip.NY, NZ: ip.NZ,
		LX: ip.L[0], LY: ip.L[1], LZ: ip.L[2],
		SectorAngle: ip.SectorAngle * math.Pi / 180,
		InnerRadius: ip.InnerRadius,
	}
	bs.Cyclic = ip.Cyclic
	return
}

func (ip *WallDistParameters) DecomposeOptions() decompose.Options {
	return decompose.Options{
		Splits:          ip.Splits,
		Objective:       ip.Objective,
		ImbalanceFactor: ip.ImbalanceFactor,
	}
}

func (ip *WallDistParameters) Mode() (distribute.Mode, error) {
	return distribute.ParseMode(ip.CommMode)
}

func (ip *WallDistParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d x %d x %d]\t\t= Cells\n", ip.NX, ip.NY, ip.NZ)
	fmt.Printf("%v\t\t= Lengths\n", ip.L)
	if axes := ip.cyclicAxes(); axes != "" {
		fmt.Printf("[%s]\t\t\t= Cyclic axes\n", axes)
	}
	if ip.SectorAngle != 0 {
		fmt.Printf("%8.3f\t\t= Sector angle (deg)\n", ip.SectorAngle)
		fmt.Printf("%8.3f\t\t= Inner radius\n", ip.InnerRadius)
	}
	fmt.Printf("[%d]\t\t\t= Ranks\n", ip.NProcs)
	fmt.Printf("[%s]\t\t= Decomposition method\n", ip.Method)
	fmt.Printf("%v\t\t= Wall patches\n", ip.WallPatches)
	fmt.Printf("%8.5f\t\t= Propagation tolerance\n", ip.Wavefront.PropagationTol)
	fmt.Printf("%8.5f\t\t= Rotational tolerance\n", ip.Wavefront.RotationalTol)
	fmt.Printf("[%d]\t\t\t= Max iterations\n", ip.Wavefront.MaxIter)
	fmt.Printf("[%s]\t= Comm mode\n", ip.CommMode)
}

func (ip *WallDistParameters) cyclicAxes() string {
	var axes []string
	for i, c := range ip.Cyclic {
		if c {
			axes = append(axes, []string{"x", "y", "z"}[i])
		}
	}
	return strings.Join(axes, " ")
}
