package tsdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/clustermon/clustermon/internal/apierr"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/pool"
)

// latestWindow bounds the range scan used to enumerate distinct entities
// for multi-entity families; generous enough to catch any entity that
// reported within the last evaluation-interval-scale window.
const latestWindow = 5 * time.Minute

// Latest implements the latest(host_ip) query contract (spec §4.4):
// the most recent row of every single-entity family for a host, with
// sentinel "no data" markers for families that have never reported.
// Multi-entity families (disk/network/gpu/container/sensor) return every
// distinct entity's most recent row.
func (s *Store) Latest(ctx context.Context, hostIP string) (model.NodeResourceSample, error) {
	if s.cache != nil {
		if cached, ok := s.cache.getLatest(ctx, hostIP); ok {
			return cached, nil
		}
	}

	sample := model.NodeResourceSample{HostIP: hostIP}

	err := pool.WithConn(ctx, s.pool, func(conn *sql.Conn) error {
		if row, ok, err := s.queryLastRow(ctx, conn, Families["cpu"], map[string]string{"host_ip": hostIP}); err == nil && ok {
			cpu := rowToCPU(row)
			sample.CPU = &cpu
			sample.HasCPUData = true
		}
		if row, ok, err := s.queryLastRow(ctx, conn, Families["memory"], map[string]string{"host_ip": hostIP}); err == nil && ok {
			mem := rowToMemory(row)
			sample.Memory = &mem
			sample.HasMemData = true
		}

		if rows, err := s.queryRange(ctx, conn, Families["disk"], map[string]string{"host_ip": hostIP}, latestWindow); err == nil {
			sample.Disks = latestPerEntity(rows, func(r map[string]any) string { return asString(r["device"]) + "/" + asString(r["mount_point"]) }, rowToDisk)
		}
		if rows, err := s.queryRange(ctx, conn, Families["network"], map[string]string{"host_ip": hostIP}, latestWindow); err == nil {
			sample.Networks = latestPerEntity(rows, func(r map[string]any) string { return asString(r["interface"]) }, rowToNetwork)
		}
		if rows, err := s.queryRange(ctx, conn, Families["gpu"], map[string]string{"host_ip": hostIP}, latestWindow); err == nil {
			sample.GPUs = latestPerEntity(rows, func(r map[string]any) string { return asString(r["gpu_name"]) }, rowToGPU)
		}
		if rows, err := s.queryRange(ctx, conn, Families["container"], map[string]string{"host_ip": hostIP}, latestWindow); err == nil {
			sample.Containers = latestPerEntity(rows, func(r map[string]any) string { return asString(r["container_id"]) }, rowToContainer)
		}
		if rows, err := s.queryRange(ctx, conn, Families["sensor"], map[string]string{"host_ip": hostIP}, latestWindow); err == nil {
			sample.Sensors = latestPerEntity(rows, func(r map[string]any) string { return asString(r["name"]) }, rowToSensor)
		}
		return nil
	})
	if err != nil {
		return model.NodeResourceSample{}, apierr.Wrap(apierr.CodeQuery, "latest for "+hostIP, err)
	}

	if s.cache != nil {
		s.cache.putLatest(ctx, hostIP, sample)
	}
	return sample, nil
}

func latestPerEntity[T any](rows []map[string]any, key func(map[string]any) string, translate func(map[string]any) T) []T {
	byKey := make(map[string]map[string]any, len(rows))
	for _, r := range rows {
		byKey[key(r)] = r // later (more recent, ascending order) rows overwrite earlier ones
	}
	out := make([]T, 0, len(byKey))
	for _, r := range byKey {
		out = append(out, translate(r))
	}
	return out
}
