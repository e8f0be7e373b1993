package bmc

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clustermon/clustermon/internal/metrics"
	"github.com/clustermon/clustermon/internal/model"
	"github.com/clustermon/clustermon/internal/registry"
	"github.com/clustermon/clustermon/internal/tsdb"
	"github.com/clustermon/clustermon/pkg/logger"
)

// readTimeout bounds each UDP read so the receive loop stays cancellable
// without needing a second goroutine to interrupt the socket (spec §4.5
// "1 s select timeout").
const readTimeout = 1 * time.Second

// Listener is a UDP multicast BMC packet ingestor. Start and Stop are
// idempotent (spec §4.5).
type Listener struct {
	groupAddr string
	ts        *tsdb.Store
	reg       *registry.Registry
	log       *logger.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	conn    *net.UDPConn
	cancel  context.CancelFunc
	running int32
	wg      sync.WaitGroup
}

// New constructs a Listener bound to group:port (e.g. "224.100.200.15:5715").
func New(groupAddr string, ts *tsdb.Store, reg *registry.Registry, log *logger.Logger) *Listener {
	return &Listener{groupAddr: groupAddr, ts: ts, reg: reg, log: log}
}

// WithMetrics attaches a metrics sink for decoded/dropped packet counts.
func (l *Listener) WithMetrics(m *metrics.Metrics) *Listener {
	l.metrics = m
	return l
}

// Start joins the multicast group and launches the receive loop. Calling
// Start while already running is a no-op.
func (l *Listener) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp4", l.groupAddr)
	if err != nil {
		atomic.StoreInt32(&l.running, 0)
		return err
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		atomic.StoreInt32(&l.running, 0)
		return err
	}
	conn.SetReadBuffer(1 << 20)

	loopCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.conn = conn
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.receiveLoop(loopCtx, conn)
	return nil
}

// Stop closes the socket and waits for the receive loop to exit. Calling
// Stop when not running is a no-op.
func (l *Listener) Stop() {
	if !atomic.CompareAndSwapInt32(&l.running, 1, 0) {
		return
	}
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) receiveLoop(ctx context.Context, conn *net.UDPConn) {
	defer l.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				l.log.WithField("error", err).Warn("bmc: read error")
				continue
			}
		}

		packet, err := Decode(buf[:n])
		if err != nil {
			l.log.WithField("error", err).Warn("bmc: dropping malformed packet")
			if l.metrics != nil {
				l.metrics.RecordBMCPacketDropped("format")
			}
			continue
		}
		if l.metrics != nil {
			l.metrics.RecordBMCPacketDecoded()
		}
		l.handle(ctx, packet)
	}
}

// handle fans a decoded packet out to the TS Store and Node Registry
// (spec §4.5 "Fan-out on each valid packet"). Every row from one packet
// shares a single server-side timestamp (spec §4.5 "a single server
// timestamp for the whole packet") rather than trusting the packet's own
// embedded clock.
func (l *Listener) handle(ctx context.Context, p Packet) {
	ts := time.Now()
	boxID := int(p.BoxID)

	for i, fan := range p.Fans {
		sample := model.FanSample{
			Ts: ts, BoxID: boxID, FanSeq: i,
			Speed: fan.Speed, AlarmType: int(fan.AlarmType), WorkMode: int(fan.WorkMode),
		}
		if err := l.ts.InsertBMCFan(ctx, ts, sample); err != nil {
			l.log.WithField("error", err).Warn("bmc: fan insert failed")
		}
	}

	for _, board := range p.Boards {
		if board.ModuleType == 0 {
			continue
		}
		slotID, ok := SlotForIPMB(board.IPMBAddr)
		if !ok {
			l.log.WithField("ipmb_addr", board.IPMBAddr).Warn("bmc: unknown ipmb address, board skipped")
			continue
		}
		hostIP, known := HostIP(boxID, slotID)
		if !known {
			l.log.WithField("slot_id", slotID).Warn("bmc: unmapped slot, using default host number")
		}

		for _, sensor := range board.Sensors {
			sample := model.BMCSensorSample{
				Ts: ts, BoxID: boxID, SlotID: slotID, SensorSeq: int(sensor.Seq),
				SensorName: sensor.Name, SensorType: int(sensor.Type), HostIP: hostIP,
				Value: float64(sensor.Value), AlarmType: int(sensor.AlarmType),
			}
			if err := l.ts.InsertBMCSensor(ctx, ts, sample); err != nil {
				l.log.WithField("error", err).Warn("bmc: sensor insert failed")
			}
		}

		l.reg.UpsertFromBMC(registry.BMCBoardUpdate{
			HostIP: hostIP, BoxID: boxID, SlotID: slotID,
			IPMBAddress: board.IPMBAddr, ModuleType: board.ModuleType,
			BMCCompany: board.BMCCompany, BMCVersion: board.BMCVersion,
		})
	}
}
