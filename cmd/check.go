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
	"fmt"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/InputParameters"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/synctools"
	"github.com/notargets/meshcomm/transform"
)

// CheckCmd represents the check command
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the couplings of a decomposition",
	Long: `
Builds the face, point and edge couplings of the decomposed block and checks
that every coupled face centre and point position matches its partner once
the coupling transform is applied.

meshcomm check -I input.yaml -n 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile, _ := cmd.Flags().GetString("inputFile")
		tol, _ := cmd.Flags().GetFloat64("tol")
		ip, err := readParameters(inputFile)
		if err != nil {
			return err
		}
		cr, err := CheckCoupling(ip)
		if err != nil {
			return err
		}
		cr.Print()
		if cr.FaceMismatch > tol || cr.PointMismatch > tol {
			return fmt.Errorf("coupled geometry differs by up to %g, tolerance %g",
				max(cr.FaceMismatch, cr.PointMismatch), tol)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(CheckCmd)
	CheckCmd.Flags().StringP("inputFile", "I", "", "YAML file for input parameters")
	CheckCmd.Flags().Float64("tol", 1e-9, "largest accepted position mismatch")
}

type CheckReport struct {
	NProcs        int
	CoupledFaces  int
	PointGroups   int
	EdgeGroups    int
	FaceMismatch  float64
	PointMismatch float64
}

func (cr *CheckReport) Print() {
	fmt.Printf("[%d]\t\t= Ranks\n", cr.NProcs)
	fmt.Printf("[%d]\t\t= Coupled faces\n", cr.CoupledFaces)
	fmt.Printf("[%d]\t\t= Coupled point groups\n", cr.PointGroups)
	fmt.Printf("[%d]\t\t= Coupled edge groups\n", cr.EdgeGroups)
	fmt.Printf("%8.3g\t= Face centre mismatch\n", cr.FaceMismatch)
	fmt.Printf("%8.3g\t= Point mismatch\n", cr.PointMismatch)
}

// CheckCoupling swaps face centres and synchronises point positions over
// the decomposition of ip, measuring how far the copies disagree.
func CheckCoupling(ip *InputParameters.WallDistParameters) (cr *CheckReport, err error) {
	_, parts, err := partition(ip)
	if err != nil {
		return
	}
	reports := make([]CheckReport, len(parts))
	err = parallel.NewWorld(len(parts)).Run(func(c parallel.Comm) error {
		var (
			m         = parts[c.Rank()]
			nInternal = m.NInternalFaces()
			centres   = m.FaceCentres()[nInternal:]
			cr        = &reports[c.Rank()]
			nCoupled  int
			faceMax   float64
			pointMax  float64
		)
		nbr, err := synctools.SwapBoundaryFaceList(c, m, centres, transform.PositionOp)
		if err != nil {
			return err
		}
		fc, err := synctools.CoupledFaces(c, m)
		if err != nil {
			return err
		}
		for bf, p := range fc.Partner {
			if p < 0 {
				continue
			}
			nCoupled++
			faceMax = max(faceMax, r3.Norm(r3.Sub(centres[bf], nbr[bf])))
		}
		var record synctools.CombineOp[r3.Vec] = func(a, b r3.Vec) r3.Vec {
			pointMax = max(pointMax, r3.Norm(r3.Sub(a, b)))
			return a
		}
		if _, err = synctools.SyncPointPositions(c, m, m.Points, record); err != nil {
			return err
		}
		pg, err := synctools.GlobalPoints(c, m)
		if err != nil {
			return err
		}
		eg, err := synctools.GlobalEdges(c, m)
		if err != nil {
			return err
		}
		cr.NProcs = c.Size()
		cr.PointGroups, cr.EdgeGroups = pg.NGlobal, eg.NGlobal
		if cr.CoupledFaces, err = parallel.AllReduceSum(c, nCoupled); err != nil {
			return err
		}
		if cr.FaceMismatch, err = parallel.AllReduceOp(c, faceMax, parallel.OpMax); err != nil {
			return err
		}
		cr.PointMismatch, err = parallel.AllReduceOp(c, pointMax, parallel.OpMax)
		return err
	})
	if err != nil {
		return
	}
	return &reports[0], nil
}
