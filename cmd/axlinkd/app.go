package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/cdata"
	"github.com/la5nta/axlink/channel"
	"github.com/la5nta/axlink/config"
	"github.com/la5nta/axlink/dlq"
	"github.com/la5nta/axlink/dlsm"
	"github.com/la5nta/axlink/kissnet"
	"github.com/la5nta/axlink/metrics"
	"github.com/la5nta/axlink/txqueue"
)

// channelRuntime bundles the transmit-side collaborators for one radio
// channel (SPEC_FULL.md §5 "Concurrency & resource model").
type channelRuntime struct {
	num    uint8
	number config.Channel
	queue  *txqueue.Queue
	worker *txqueue.Worker
	keyer  channel.Keyer
}

// app wires every SPEC_FULL.md component together: one txqueue
// Queue/Worker per channel, a single dlq.Queue feeding a dlsm.LinkSet, and
// KISS TCP/serial front ends bridging host applications to the channel
// (SPEC_FULL.md §2, §5).
type app struct {
	cfg config.Config
	log *log.Logger

	pool *cdata.Pool
	reg  *prometheus.Registry
	met  *metrics.Registry

	channels map[uint8]*channelRuntime
	dlq      *dlq.Queue
	linkset  *dlsm.LinkSet

	kissTCP    *kissnet.TCPServer
	kissSerial *kissnet.SerialPort
	metricsSrv *metrics.Server
}

func newApp(cfg config.Config, logger *log.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	a := &app{
		cfg:      cfg,
		log:      logger,
		pool:     cdata.NewPool(0),
		reg:      reg,
		met:      metrics.NewRegistry(reg),
		channels: make(map[uint8]*channelRuntime),
		dlq:      dlq.NewQueue(64),
	}

	for _, chCfg := range cfg.Channels {
		cr, err := a.buildChannel(chCfg)
		if err != nil {
			return nil, err
		}
		a.channels[chCfg.Number] = cr
	}

	tx := make(map[uint8]*txqueue.Queue, len(a.channels))
	for n, cr := range a.channels {
		tx[n] = cr.queue
	}

	a.linkset = dlsm.NewLinkSet(cfg.Timers.DLSMConfig(), a.dlq, tx, a, logger)
	for _, call := range cfg.RegisteredCallsigns {
		addr, err := ax25.ParseAddress(call)
		if err != nil {
			return nil, fmt.Errorf("registered_callsigns: %w", err)
		}
		a.dlq.Push(dlq.Event{Kind: dlq.DLRegisterCallsign, Addresses: ax25.AddressList{Source: addr}})
	}

	disp := &dispatcher{app: a}

	if cfg.KISSTCP != nil {
		srv, err := kissnet.NewTCPServer(cfg.KISSTCP.Listen, disp, cfg.KISSTCP.Capacity, logger)
		if err != nil {
			return nil, err
		}
		a.kissTCP = srv
	}
	if cfg.KISSSerial != nil {
		sp, err := kissnet.OpenSerialPort(cfg.KISSSerial.Device, cfg.KISSSerial.Baud, disp, logger)
		if err != nil {
			return nil, err
		}
		a.kissSerial = sp
	}
	if cfg.MetricsListen != "" {
		a.metricsSrv = metrics.NewServer(cfg.MetricsListen, reg, a)
	}

	return a, nil
}

func (a *app) buildChannel(chCfg config.Channel) (*channelRuntime, error) {
	var keyer channel.Keyer = channel.NullKeyer{}
	switch {
	case chCfg.RigctldAddr != "":
		k, err := channel.OpenHamlibKeyer(chCfg.RigctldAddr)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", chCfg.Number, err)
		}
		keyer = k
	case chCfg.SerialDevice != "":
		line := channel.PTTRTS
		if chCfg.PTTLine == "dtr" {
			line = channel.PTTDTR
		}
		k, err := channel.OpenSerialKeyer(chCfg.SerialDevice, line)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", chCfg.Number, err)
		}
		keyer = k
	}

	q := txqueue.NewQueue(32)
	cr := &channelRuntime{num: chCfg.Number, number: chCfg, queue: q, keyer: keyer}

	tc := txqueue.Channel{
		DeviceLock:   &sync.Mutex{},
		CarrierOrPTT: func() bool { busy, _ := keyer.Sense(); return busy },
		Transmit:     cr.transmit,
		SeizeConfirm: func() {
			a.dlq.Push(dlq.Event{Kind: dlq.LMSeizeConfirm, Channel: cr.num})
		},
	}
	chCfg.ApplyTiming(&tc)
	cr.worker = txqueue.NewWorker(q, tc, a.log)
	return cr, nil
}

// transmit keys the channel's PTT line on and releases it again before
// returning. No bundle bytes are sent (HDLC/modem transmission is out of
// scope, spec.md §1), and the worker's bit-time sleep runs after PTT has
// already been released.
func (cr *channelRuntime) transmit(bundle [][]byte) error {
	if err := cr.keyer.Key(true); err != nil {
		return fmt.Errorf("channel %d: key on: %w", cr.num, err)
	}
	defer cr.keyer.Key(false)
	return nil
}

func (a *app) start(ctx context.Context, wg *sync.WaitGroup) {
	for _, cr := range a.channels {
		wg.Add(1)
		go func(cr *channelRuntime) {
			defer wg.Done()
			cr.worker.Run(ctx)
		}(cr)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.linkset.Run(ctx)
	}()

	if a.kissTCP != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.kissTCP.Serve(ctx); err != nil {
				a.log.Error("kiss tcp server stopped", "err", err)
			}
		}()
	}
	if a.kissSerial != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.kissSerial.Serve(ctx); err != nil {
				a.log.Error("kiss serial port stopped", "err", err)
			}
		}()
	}
	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.Run(); err != nil {
				a.log.Error("metrics server stopped", "err", err)
			}
		}()
	}
}

func (a *app) close() error {
	var err error
	if a.kissTCP != nil {
		err = multierr.Append(err, a.kissTCP.Close())
	}
	if a.kissSerial != nil {
		err = multierr.Append(err, a.kissSerial.Close())
	}
	for _, cr := range a.channels {
		err = multierr.Append(err, cr.keyer.Close())
	}
	return err
}

// recoverPoolExhaustion is deferred around the daemon's run loop: a panic
// on that goroutine is logged at Fatal level and the process exits
// (SPEC_FULL.md §3). The CDATA pool reports an exhausted ceiling as an
// ErrPoolExhausted error, not a panic, and panics on other goroutines are
// not caught here.
func (a *app) recoverPoolExhaustion() {
	if r := recover(); r != nil {
		a.log.Fatal("unrecoverable error", "panic", r)
	}
}
