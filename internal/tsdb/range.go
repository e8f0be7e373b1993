package tsdb

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/pool"
)

// RangeResult is the per-family payload of a range() query (spec §4.4
// "range(host_ip, span, families[])"), one slice of tagged samples per
// requested family, every sample JSON-serializable as-is.
type RangeResult struct {
	CPU        []model.CPUSample        `json:"cpu,omitempty"`
	Memory     []model.MemorySample     `json:"memory,omitempty"`
	Disk       []model.DiskSample       `json:"disk,omitempty"`
	Network    []model.NetworkSample    `json:"network,omitempty"`
	GPU        []model.GPUSample        `json:"gpu,omitempty"`
	Container  []model.ContainerSample  `json:"container,omitempty"`
	Sensor     []model.SensorSample     `json:"sensor,omitempty"`
}

// AllFamilyNames is the default family set when a caller doesn't
// restrict to a subset (spec §6 "/node/historical-metrics... defaults to
// the full set").
var AllFamilyNames = []string{"cpu", "memory", "disk", "network", "gpu", "container", "sensor"}

// Range implements range(host_ip, span, families[]) for the resource
// families (spec §4.4). Rows are returned in non-decreasing ts order
// (spec §8 invariant).
func (s *Store) Range(ctx context.Context, hostIP string, span time.Duration, families []string) (RangeResult, error) {
	if len(families) == 0 {
		families = AllFamilyNames
	}
	wanted := make(map[string]bool, len(families))
	for _, f := range families {
		wanted[f] = true
	}

	var result RangeResult
	err := pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		tagFilter := map[string]string{"host_ip": hostIP}

		if wanted["cpu"] {
			rows, err := s.queryRange(ctx, conn, Families["cpu"], tagFilter, span)
			if err != nil {
				return err
			}
			result.CPU = mapSlice(rows, rowToCPU)
		}
		if wanted["memory"] {
			rows, err := s.queryRange(ctx, conn, Families["memory"], tagFilter, span)
			if err != nil {
				return err
			}
			result.Memory = mapSlice(rows, rowToMemory)
		}
		if wanted["disk"] {
			rows, err := s.queryRange(ctx, conn, Families["disk"], tagFilter, span)
			if err != nil {
				return err
			}
			result.Disk = mapSlice(rows, rowToDisk)
		}
		if wanted["network"] {
			rows, err := s.queryRange(ctx, conn, Families["network"], tagFilter, span)
			if err != nil {
				return err
			}
			result.Network = mapSlice(rows, rowToNetwork)
		}
		if wanted["gpu"] {
			rows, err := s.queryRange(ctx, conn, Families["gpu"], tagFilter, span)
			if err != nil {
				return err
			}
			result.GPU = mapSlice(rows, rowToGPU)
		}
		if wanted["container"] {
			rows, err := s.queryRange(ctx, conn, Families["container"], tagFilter, span)
			if err != nil {
				return err
			}
			result.Container = mapSlice(rows, rowToContainer)
		}
		if wanted["sensor"] {
			rows, err := s.queryRange(ctx, conn, Families["sensor"], tagFilter, span)
			if err != nil {
				return err
			}
			result.Sensor = mapSlice(rows, rowToSensor)
		}
		return nil
	})
	if err != nil {
		return RangeResult{}, apierr.Wrap(apierr.CodeQuery, "range for "+hostIP, err)
	}
	return result, nil
}

// BMCRangeResult is the per-family payload of a BMC historical query
// (spec §6 "/node/historical-bmc").
type BMCRangeResult struct {
	Fan    []model.FanSample       `json:"fan,omitempty"`
	Sensor []model.BMCSensorSample `json:"sensor,omitempty"`
}

// AllBMCFamilyNames is the default BMC family set.
var AllBMCFamilyNames = []string{"fan", "sensor"}

// RangeBMC implements the BMC-side of the range contract, filtered by
// box_id instead of host_ip.
func (s *Store) RangeBMC(ctx context.Context, boxID int, span time.Duration, families []string) (BMCRangeResult, error) {
	if len(families) == 0 {
		families = AllBMCFamilyNames
	}
	wanted := make(map[string]bool, len(families))
	for _, f := range families {
		wanted[f] = true
	}

	boxIDStr := strconv.Itoa(boxID)
	var result BMCRangeResult
	err := pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		if wanted["fan"] {
			rows, err := s.queryRange(ctx, conn, Families["bmc_fan_super"], map[string]string{"box_id": boxIDStr}, span)
			if err != nil {
				return err
			}
			result.Fan = mapSlice(rows, rowToFan)
		}
		if wanted["sensor"] {
			rows, err := s.queryRange(ctx, conn, Families["bmc_sensor_super"], map[string]string{"box_id": boxIDStr}, span)
			if err != nil {
				return err
			}
			result.Sensor = mapSlice(rows, rowToBMCSensor)
		}
		return nil
	})
	if err != nil {
		return BMCRangeResult{}, apierr.Wrap(apierr.CodeQuery, "bmc range", err)
	}
	return result, nil
}

// mapSlice translates each row into T, preserving the query's ts order.
func mapSlice[T any](rows []map[string]any, translate func(map[string]any) T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		out = append(out, translate(r))
	}
	return out
}
