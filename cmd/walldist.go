/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/notargets/meshcomm/InputParameters"
	"github.com/notargets/meshcomm/distribute"
	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/synctools"
	"github.com/notargets/meshcomm/wavefront"
)

// WallDistCmd represents the walldist command
var WallDistCmd = &cobra.Command{
	Use:   "walldist",
	Short: "Distance of every cell to the wall patches",
	Long: `
Decomposes the block described by the input file, propagates the wall
distance across the ranks and writes one line per global cell.

meshcomm walldist -I input.yaml --output dist.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile, _ := cmd.Flags().GetString("inputFile")
		output, _ := cmd.Flags().GetString("output")
		ip, err := readParameters(inputFile)
		if err != nil {
			return err
		}
		ip.Print()
		var wd *WallDist
		if err = measure("walldist", func() (err error) {
			wd, err = RunWallDist(ip)
			return
		}); err != nil {
			return err
		}
		fmt.Printf("%d iterations, max distance %g, %d cells unreached\n",
			wd.Iterations, wd.MaxDistance(), wd.Unreached)
		if output == "" {
			return nil
		}
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		return wd.WriteCSV(f)
	},
}

func init() {
	rootCmd.AddCommand(WallDistCmd)
	WallDistCmd.Flags().StringP("inputFile", "I", "", "YAML file for input parameters like:\n\t- block size\n\t- ranks\n\t- wall patches")
	WallDistCmd.Flags().StringP("output", "o", "", "CSV file for the cell distances")
}

// WallDist is a wall distance gathered back onto the undecomposed mesh.
type WallDist struct {
	Global     *mesh.Mesh
	Distance   []float64 // Per global cell
	Iterations int
	Unreached  int
}

func (wd *WallDist) MaxDistance() (d float64) {
	for _, v := range wd.Distance {
		if v != math.MaxFloat64 {
			d = max(d, v)
		}
	}
	return
}

// RunWallDist decomposes, runs the wall distance on every rank and gathers
// the per cell distances in global cell order.
func RunWallDist(ip *InputParameters.WallDistParameters) (wd *WallDist, err error) {
	global, parts, err := partition(ip)
	if err != nil {
		return
	}
	mode, err := ip.Mode()
	if err != nil {
		return
	}
	var (
		results = make([]*wavefront.WallResult, len(parts))
		world   = parallel.NewWorld(len(parts))
	)
	err = world.Run(func(c parallel.Comm) error {
		m := parts[c.Rank()]
		if mode != distribute.NonBlocking {
			if err := synctools.UseMode(c, m, mode); err != nil {
				return err
			}
		}
		res, err := wavefront.WallDistance(c, m, ip.WallPatches, ip.Wavefront)
		if err != nil {
			return err
		}
		results[c.Rank()] = res
		return nil
	})
	if err != nil {
		return
	}
	wd = &WallDist{
		Global:     global,
		Distance:   make([]float64, global.NCells),
		Iterations: results[0].Iterations,
		Unreached:  results[0].Unreached,
	}
	for p, res := range results {
		for i, d := range res.Distance {
			wd.Distance[parts[p].GlobalCell(i)] = d
		}
	}
	if wd.Unreached > 0 {
		log.Printf("warning: %d cells not reached after %d iterations", wd.Unreached, wd.Iterations)
	}
	return
}

// WriteCSV writes cell, x, y, z, distance lines, unreached cells with an
// empty distance.
func (wd *WallDist) WriteCSV(w io.Writer) error {
	var (
		cw   = csv.NewWriter(w)
		ftoa = func(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }
	)
	if err := cw.Write([]string{"cell", "x", "y", "z", "distance"}); err != nil {
		return err
	}
	for i, cc := range wd.Global.CellCentres() {
		d := ""
		if wd.Distance[i] != math.MaxFloat64 {
			d = ftoa(wd.Distance[i])
		}
		if err := cw.Write([]string{strconv.Itoa(i), ftoa(cc.X), ftoa(cc.Y), ftoa(cc.Z), d}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
