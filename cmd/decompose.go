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
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/notargets/meshcomm/decompose"
	"github.com/notargets/meshcomm/mesh"
)

// DecomposeCmd represents the decompose command
var DecomposeCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Split the block over ranks and list the patches of every rank",
	Long: `
Decomposes the block described by the input file and prints, per rank, the
cell count and every patch with its kind, size and partner.

meshcomm decompose -I input.yaml -n 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		inputFile, _ := cmd.Flags().GetString("inputFile")
		ip, err := readParameters(inputFile)
		if err != nil {
			return err
		}
		_, parts, err := partition(ip)
		if err != nil {
			return err
		}
		if len(parts) > 1 {
			decompose.Report(parts)
		}
		PrintPatches(os.Stdout, parts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(DecomposeCmd)
	DecomposeCmd.Flags().StringP("inputFile", "I", "", "YAML file for input parameters")
}

func PrintPatches(w io.Writer, parts []*mesh.Mesh) {
	for p, m := range parts {
		fmt.Fprintf(w, "rank %d: %d cells, %d faces, %d points\n", p, m.NCells, m.NFaces(), m.NPoints())
		for _, patch := range m.Patches {
			if patch.Size == 0 {
				continue
			}
			fmt.Fprintf(w, "  %-32s %-10s %6d faces", patch.Name, patch.Kind, patch.Size)
			if patch.Coupled() {
				fmt.Fprintf(w, "  -> rank %d patch %d", patch.NeighbProc, patch.NeighbPatch)
			}
			fmt.Fprintln(w)
		}
	}
}
