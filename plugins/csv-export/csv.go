package main

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ayusman/romscope/internal/joint"
	"github.com/ayusman/romscope/internal/rom"
)

var header = []string{
	"finger", "joint", "measurable", "flexion", "extension", "baseline",
	"floor", "ceiling", "mean", "std_dev", "samples", "min_distance",
	"outcome", "detection_ratio",
}

// writeCSV writes one row per finger and joint in report order.
// Unmeasurable fingers get empty value columns.
func writeCSV(w io.Writer, report *rom.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	ratio := formatFloat(report.DetectionRatio)
	for _, f := range report.FingerOrder {
		fr := report.Fingers[f]
		minDistance := ""
		if fr.MinDistance != nil {
			minDistance = formatFloat(*fr.MinDistance)
		}

		for _, j := range joint.All {
			row := []string{string(f), string(j), strconv.FormatBool(fr.Measurable)}
			res, ok := fr.Joints[j]
			if fr.Measurable && ok {
				row = append(row,
					formatFloat(res.Flexion),
					formatFloat(res.Extension),
					formatFloat(res.Baseline),
					formatFloat(res.Floor),
					formatFloat(res.Ceiling),
					formatFloat(res.Mean),
					formatFloat(res.StdDev),
					strconv.Itoa(res.Samples),
				)
			} else {
				row = append(row, "", "", "", "", "", "", "", strconv.Itoa(fr.AngleSamples))
			}
			row = append(row, minDistance, string(report.Outcome), ratio)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
