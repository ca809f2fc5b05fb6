package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/inspect"
	"github.com/capatazlib/go-evstream/internal/sim"
	"github.com/capatazlib/go-evstream/stream"
	"github.com/capatazlib/go-evstream/streamtest"
)

var errScenarioFailed = errors.New("scenario assertions failed")

// demoInquiryLength is the length of each demo inquiry, in units of 1.28s
const demoInquiryLength = 4

// logReporter reports assertion failures through the logger
type logReporter struct {
	ll     logrus.FieldLogger
	failed bool
}

func (r *logReporter) Errorf(format string, args ...interface{}) {
	r.failed = true
	r.ll.Errorf(format, args...)
}

func demo(c *cli.Context) error {
	addr := c.String("addr")
	if addr == "" {
		addr = cfg.Inspector.Addr
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	promRegistry := prometheus.NewRegistry()
	registry := inspect.NewRegistry()
	server := inspect.NewServer(ll, registry, inspect.WithGatherer(promRegistry))

	registryDone := make(chan error, 1)
	go func() { registryDone <- registry.Run(ctx) }()
	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Serve(ctx, &http.Server{Addr: addr}) }()

	air := sim.NewAir(
		sim.WithLogger(ll),
		sim.WithStreamOpts(append(
			cfg.StreamOpts(),
			stream.WithLogger(ll),
			stream.WithMetrics(stream.NewMetrics(promRegistry)),
		)...),
	)
	defer air.Close()

	scenarioErr := runDemoScenario(ctx, ll, air, registry)
	if scenarioErr != nil {
		ll.WithError(scenarioErr).Error("neighbor discovery scenario failed")
	} else {
		ll.Info("neighbor discovery scenario passed, inspector keeps serving")
	}

	var serverErr error
	select {
	case <-ctx.Done():
		serverErr = <-serverDone
	case serverErr = <-serverDone:
		stop()
	}
	<-registryDone
	if serverErr != nil {
		return errorf("inspector failed: %s", serverErr)
	}
	if scenarioErr != nil {
		return cli.Exit("demo scenario failed", 1)
	}
	return nil
}

// runDemoScenario runs the inquiry and remote name scenarios between a cert
// and a device under test, registering every stream in the inspector
func runDemoScenario(
	ctx context.Context,
	ll logrus.FieldLogger,
	air *sim.Air,
	registry *inspect.Registry,
) error {
	cert, err := air.NewController("cert")
	if err != nil {
		return err
	}
	dut, err := air.NewController("dut")
	if err != nil {
		return err
	}
	for _, ctrl := range []*sim.Controller{cert, dut} {
		if err := registry.Register(ctx, ctrl.Events()); err != nil {
			return err
		}
	}

	r := &logReporter{ll: ll.WithField("demo.step", "assert")}
	timeout := streamtest.WithTimeout(cfg.DefaultTimeout)
	inquiryTimeout := streamtest.WithTimeout(
		demoInquiryLength*sim.DefaultInquiryUnit + cfg.DefaultTimeout,
	)

	certName := "Im_A_Cert@" + cert.Address().String()
	setName, err := hci.NewWriteLocalName(certName)
	if err != nil {
		return err
	}
	commands := []hci.Command{
		hci.WriteScanEnable{ScanEnable: hci.InquiryAndPageScan},
		setName,
		hci.WriteExtendedInquiryResponse{
			Data: []hci.GapData{{Type: hci.GapCompleteLocalName, Data: []byte(certName)}},
		},
	}
	for _, cmd := range commands {
		if err := cert.Send(cmd); err != nil {
			return err
		}
	}
	streamtest.AssertEmitsInOrder(r, cert.Events(), []stream.EventP[hci.Event]{
		hci.CommandComplete(hci.OpWriteScanEnable),
		hci.CommandComplete(hci.OpWriteLocalName),
		hci.CommandComplete(hci.OpWriteExtendedInquiryResponse),
	}, timeout)

	neighbor := sim.NewNeighbor(dut)
	for _, mode := range []hci.InquiryMode{hci.StandardMode, hci.RssiMode, hci.ExtendedMode} {
		session, err := neighbor.SetInquiryMode(ctx, sim.InquiryMsg{
			ResultMode: mode,
			Length:     demoInquiryLength,
		})
		if err != nil {
			return err
		}
		if err := registry.Register(ctx, session.Events()); err != nil {
			session.Close()
			return err
		}

		pred := hci.InquiryResult(cert.Address())
		switch mode {
		case hci.RssiMode:
			pred = hci.InquiryResultWithRssi(cert.Address())
		case hci.ExtendedMode:
			pred = hci.ExtendedInquiryResult(cert.Address())
		}
		streamtest.AssertEmitsInOrder(
			r,
			session.Events(),
			[]stream.EventP[hci.Event]{pred, hci.InquiryComplete()},
			inquiryTimeout,
		)

		// every session of the dut uses the same stream name
		session.Close()
		if err := registry.Unregister(ctx, session.Events().Name()); err != nil {
			return err
		}
	}

	nameSession, err := neighbor.GetRemoteName(cert.Address())
	if err != nil {
		return err
	}
	defer nameSession.Release()
	nameSession.VerifyName(r, certName, timeout)

	if r.failed {
		return errScenarioFailed
	}
	return nil
}
