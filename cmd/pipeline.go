package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"

	"github.com/notargets/meshcomm/InputParameters"
	"github.com/notargets/meshcomm/decompose"
	"github.com/notargets/meshcomm/mesh"
)

const exampleFile = `
########################################
Title: "Channel"
NX: 20
NY: 10
NZ: 1
L: [2, 1, 0.1]
Cyclic: [true, false, false] # along x, y, z
NProcs: 4
Method: simple      # block, roundrobin, simple or metis
Splits: [2, 2, 1]
WallPatches: [ymin, ymax]
Wavefront:
  propagationTol: 0.01
  rotationalTol: 0.05
  maxIter: -1
CommMode: nonblocking # or scheduled
########################################
`

// readParameters reads the YAML input file over the defaults, then applies
// the nprocs and mode overrides from flags, environment or config file.
func readParameters(inputFile string) (ip *InputParameters.WallDistParameters, err error) {
	ip = InputParameters.NewWallDistParameters()
	if inputFile == "" {
		fmt.Printf("no input file (-I, --inputFile), running defaults. Example File:%s\n", exampleFile)
	} else {
		var data []byte
		if data, err = os.ReadFile(inputFile); err != nil {
			return nil, err
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", inputFile, err)
		}
	}
	if viper.IsSet("nprocs") {
		ip.NProcs = viper.GetInt("nprocs")
	}
	if viper.IsSet("mode") {
		ip.CommMode = viper.GetString("mode")
	}
	if viper.GetBool("verbose") {
		ip.Wavefront.Verbose = true
	}
	if err = ip.Validate(); err != nil {
		return nil, err
	}
	return
}

// partition generates the block and splits it over ip.NProcs ranks.
func partition(ip *InputParameters.WallDistParameters) (global *mesh.Mesh, parts []*mesh.Mesh, err error) {
	bs, err := ip.BlockSpec()
	if err != nil {
		return
	}
	if global, err = mesh.GenerateBlock(bs); err != nil {
		return
	}
	if ip.NProcs == 1 {
		return global, []*mesh.Mesh{global}, nil
	}
	decompose.RegisterDefaults()
	method, err := decompose.New(ip.Method, ip.DecomposeOptions())
	if err != nil {
		return
	}
	cellToProc, err := method.CellToProc(global, ip.NProcs)
	if err != nil {
		return
	}
	if parts, err = decompose.Decompose(global, cellToProc, ip.NProcs); err != nil {
		return
	}
	if ip.Wavefront.Verbose {
		log.Printf("%s decomposition of %d cells", method.Name(), global.NCells)
		decompose.Report(parts)
	}
	return
}
