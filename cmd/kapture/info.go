package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sfmkit/kapture-go/kapture"
)

// summarize renders a dataset overview: one row per collection with its entry
// count and a short description of what the entries are.
func summarize(k *kapture.Kapture) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Collection", "Count", "Details"})
	t.AppendRow([]interface{}{"sensors", len(k.Sensors), sensorDetails(k.Sensors)})
	t.AppendRow([]interface{}{"rigs", len(k.Rigs), rigDetails(k.Rigs)})
	t.AppendRow([]interface{}{"trajectories", len(k.Trajectories.Flatten()), fmt.Sprintf("timestamps: %d", len(k.Trajectories))})
	t.AppendRow([]interface{}{"images", len(k.Records.Flatten()), fmt.Sprintf("files: %d", len(k.Records.Filenames()))})
	t.AppendRow([]interface{}{"gnss", len(k.Gnss.Flatten()), ""})
	t.AppendRow(featureRow("keypoints", k.Keypoints))
	t.AppendRow(featureRow("descriptors", k.Descriptors))
	t.AppendRow([]interface{}{"matches", len(k.Matches), ""})
	t.AppendRow([]interface{}{"points3d", len(k.Points3d), ""})
	return t.Render()
}

func sensorDetails(sensors kapture.Sensors) string {
	byType := map[string]int{}
	for _, sensor := range sensors {
		byType[string(sensor.Type)]++
	}
	types := make([]string, 0, len(byType))
	for name := range byType {
		types = append(types, name)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, name := range types {
		parts = append(parts, fmt.Sprintf("%s: %d", name, byType[name]))
	}
	return strings.Join(parts, ", ")
}

func rigDetails(rigs kapture.Rigs) string {
	if len(rigs) == 0 {
		return ""
	}
	return fmt.Sprintf("mounted sensors: %d", len(rigs.Flatten()))
}

func featureRow(name string, f *kapture.Features) []interface{} {
	if f == nil {
		return []interface{}{name, 0, ""}
	}
	return []interface{}{name, f.Len(), fmt.Sprintf("%s, %s x%d", f.Name, string(f.DType), f.DSize)}
}
