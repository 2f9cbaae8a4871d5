// Package dataset loads the NSL-KDD benchmark and shapes it into the
// aggregated-window schema the detector trains on.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
)

// Name is the dataset identifier recorded in artifacts.
const Name = "NSL-KDD"

// LabelColumn holds 1 for attack rows and 0 for normal rows.
const LabelColumn = "is_attack"

// Columns is the header of the headerless NSL-KDD CSV files.
var Columns = []string{
	"duration", "protocol_type", "service", "flag", "src_bytes", "dst_bytes",
	"land", "wrong_fragment", "urgent", "hot", "num_failed_logins", "logged_in",
	"num_compromised", "root_shell", "su_attempted", "num_root",
	"num_file_creations", "num_shells", "num_access_files", "num_outbound_cmds",
	"is_host_login", "is_guest_login", "count", "srv_count", "serror_rate",
	"srv_serror_rate", "rerror_rate", "srv_rerror_rate", "same_srv_rate",
	"diff_srv_rate", "srv_diff_host_rate", "dst_host_count", "dst_host_srv_count",
	"dst_host_same_srv_rate", "dst_host_diff_srv_rate",
	"dst_host_same_src_port_rate", "dst_host_srv_diff_host_rate",
	"dst_host_serror_rate", "dst_host_srv_serror_rate", "dst_host_rerror_rate",
	"dst_host_srv_rerror_rate", "label", "difficulty",
}

// minDuration keeps rate_bps finite for zero-length connections.
const minDuration = 1e-3

// Load reads an NSL-KDD file such as KDDTrain+.txt.
func Load(path string) (*frame.Frame, error) {
	f, err := frame.ReadCSVFile(path, Columns...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", Name, err)
	}
	return f, nil
}

// ToRetina converts raw NSL-KDD rows into packet_count, byte_count,
// duration_seconds, rate_bps and the is_attack label. Unparseable numeric
// cells become zero.
func ToRetina(raw *frame.Frame) (*frame.Frame, error) {
	if err := raw.Require("duration", "src_bytes", "dst_bytes", "count", "label"); err != nil {
		return nil, err
	}
	n := raw.Rows()
	count := numeric(raw, "count")
	srcBytes := numeric(raw, "src_bytes")
	dstBytes := numeric(raw, "dst_bytes")
	duration := numeric(raw, "duration")

	packets := make([]float64, n)
	bytes := make([]float64, n)
	rate := make([]float64, n)
	attack := make([]float64, n)
	for i := 0; i < n; i++ {
		packets[i] = count[i]
		bytes[i] = srcBytes[i] + dstBytes[i]
		rate[i] = bytes[i] / math.Max(duration[i], minDuration)
		label, _ := raw.Cell(i, "label")
		if !strings.EqualFold(strings.TrimSpace(label), "normal") {
			attack[i] = 1
		}
	}

	return frame.New(
		frame.NumericColumn("packet_count", packets),
		frame.NumericColumn("byte_count", bytes),
		frame.NumericColumn("duration_seconds", duration),
		frame.NumericColumn("rate_bps", rate),
		frame.NumericColumn(LabelColumn, attack),
	)
}

// LoadRetina loads path and converts it in one step.
func LoadRetina(path string) (*frame.Frame, error) {
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	return ToRetina(raw)
}

func numeric(f *frame.Frame, name string) []float64 {
	col, _ := f.Column(name)
	out := make([]float64, col.Len())
	for i := range out {
		var v float64
		if col.Kind == frame.Numeric {
			v = col.Floats[i]
		} else if parsed, err := strconv.ParseFloat(strings.TrimSpace(col.Strings[i]), 64); err == nil {
			v = parsed
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
	}
	return out
}
