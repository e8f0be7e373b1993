// Package main is a reference telemetry agent: it samples the local
// host with gopsutil and POSTs heartbeat and resource payloads to a
// cluster monitor server on a fixed interval (SPEC_FULL §11).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/clustermon/clustermon/internal/model"
)

func main() {
	serverAddr := flag.String("server", "http://127.0.0.1:8080", "cluster monitor server base URL")
	hostIP := flag.String("host-ip", "", "this node's host IP (defaults to the hostname)")
	boxID := flag.Int("box-id", 1, "chassis box id")
	slotID := flag.Int("slot-id", 1, "chassis slot id")
	interval := flag.Duration("interval", 10*time.Second, "sampling interval")
	flag.Parse()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	ip := *hostIP
	if ip == "" {
		ip = hostname
	}

	client := &http.Client{Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	info := model.BoxInfo{
		HostIP:       ip,
		BoxID:        *boxID,
		SlotID:       *slotID,
		Hostname:     hostname,
		ServicePort:  9090,
		HardwareType: "generic",
	}
	if err := postJSON(ctx, client, *serverAddr+"/heartbeat", map[string]any{"api_version": 1, "data": info}); err != nil {
		log.Printf("initial heartbeat failed: %v", err)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	heartbeatTicker := time.NewTicker(5 * *interval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeatTicker.C:
			if err := postJSON(ctx, client, *serverAddr+"/heartbeat", map[string]any{"api_version": 1, "data": info}); err != nil {
				log.Printf("heartbeat failed: %v", err)
			}
		case <-ticker.C:
			snap, err := sample()
			if err != nil {
				log.Printf("sample failed: %v", err)
				continue
			}
			body := map[string]any{
				"api_version": 1,
				"data": map[string]any{
					"host_ip":  ip,
					"resource": snap,
				},
			}
			if err := postJSON(ctx, client, *serverAddr+"/resource", body); err != nil {
				log.Printf("resource post failed: %v", err)
			}
		}
	}
}

func sample() (model.ResourceSnapshot, error) {
	var snap model.ResourceSnapshot

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return snap, fmt.Errorf("cpu percent: %w", err)
	}
	counts, err := cpu.Counts(true)
	if err != nil {
		return snap, fmt.Errorf("cpu counts: %w", err)
	}
	loadAvg, err := load.Avg()
	if err != nil {
		loadAvg = &load.AvgStat{}
	}
	usage := 0.0
	if len(percents) > 0 {
		usage = percents[0]
	}
	snap.CPU = &model.CPUSample{
		Ts:           time.Now(),
		UsagePercent: usage,
		LoadAvg1m:    loadAvg.Load1,
		LoadAvg5m:    loadAvg.Load5,
		LoadAvg15m:   loadAvg.Load15,
		CoreCount:    counts,
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return snap, fmt.Errorf("virtual memory: %w", err)
	}
	snap.Memory = &model.MemorySample{
		Ts:           time.Now(),
		Total:        vm.Total,
		Used:         vm.Used,
		Free:         vm.Free,
		UsagePercent: vm.UsedPercent,
	}

	return snap, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
