package sim_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capatazlib/go-evstream/hci"
	"github.com/capatazlib/go-evstream/internal/sim"
	"github.com/capatazlib/go-evstream/stream"
	"github.com/capatazlib/go-evstream/streamtest"
)

// recordingT records assertion failures instead of failing the running test
type recordingT struct {
	msgs []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.msgs = append(r.msgs, fmt.Sprintf(format, args...))
}

type vendorCommand struct{}

func (vendorCommand) OpCode() hci.OpCode { return hci.OpCode(0xFC01) }

func newAir(t *testing.T, names ...string) (*sim.Air, []*sim.Controller) {
	t.Helper()
	air := sim.NewAir(sim.WithInquiryUnit(5 * time.Millisecond))
	t.Cleanup(air.Close)

	ctrls := make([]*sim.Controller, 0, len(names))
	for _, name := range names {
		ctrl, err := air.NewController(name)
		require.NoError(t, err)
		ctrls = append(ctrls, ctrl)
	}
	return air, ctrls
}

func TestInquiryReportsLateDevices(t *testing.T) {
	_, ctrls := newAir(t, "inquirer", "late")
	inquirer, late := ctrls[0], ctrls[1]

	require.NoError(t, inquirer.Send(hci.Inquiry{LAP: hci.GIAC, Length: 200}))
	streamtest.AssertEmitsNone(
		t,
		inquirer.Events(),
		hci.HasCode(hci.EventInquiryResult),
		streamtest.WithTimeout(10*time.Millisecond),
	)

	require.NoError(t, late.Send(hci.WriteScanEnable{ScanEnable: hci.InquiryScanOnly}))
	streamtest.AssertEmits(
		t,
		inquirer.Events(),
		hci.InquiryResult(late.Address()),
		streamtest.WithTimeout(time.Second),
	)
}

func TestInquiryMaxResults(t *testing.T) {
	_, ctrls := newAir(t, "inquirer", "a", "b", "c")
	for _, ctrl := range ctrls[1:] {
		require.NoError(t, ctrl.Send(hci.WriteScanEnable{ScanEnable: hci.InquiryAndPageScan}))
	}

	inquirer := ctrls[0]
	require.NoError(t, inquirer.Send(hci.Inquiry{LAP: hci.GIAC, Length: 200, NumResponses: 2}))

	evs := streamtest.Events(inquirer.Events().Snapshot())
	streamtest.AssertExactMatch(t, evs, []stream.EventP[hci.Event]{
		hci.CommandStatus(hci.OpInquiry),
		hci.InquiryResult(ctrls[1].Address()),
		hci.InquiryResult(ctrls[2].Address()),
		hci.InquiryComplete(),
	})
}

func TestInquiryCancel(t *testing.T) {
	_, ctrls := newAir(t, "inquirer")
	inquirer := ctrls[0]

	require.NoError(t, inquirer.Send(hci.Inquiry{LAP: hci.GIAC, Length: 200}))
	require.NoError(t, inquirer.Send(hci.Inquiry{LAP: hci.GIAC, Length: 200}))
	require.NoError(t, inquirer.Send(hci.InquiryCancel{}))
	require.NoError(t, inquirer.Send(hci.InquiryCancel{}))

	evs := streamtest.Events(inquirer.Events().Snapshot())
	require.Len(t, evs, 4)
	assert.Equal(t, hci.StatusSuccess, evs[0].Status)
	assert.Equal(t, hci.StatusCommandDisallowed, evs[1].Status)
	assert.Equal(t, hci.StatusSuccess, evs[2].Status)
	assert.Equal(t, hci.StatusCommandDisallowed, evs[3].Status)

	streamtest.AssertEmitsNone(
		t,
		inquirer.Events(),
		hci.InquiryComplete(),
		streamtest.WithTimeout(20*time.Millisecond),
	)
}

func TestInquiryCompletesAfterLength(t *testing.T) {
	_, ctrls := newAir(t, "inquirer")
	inquirer := ctrls[0]

	start := time.Now()
	require.NoError(t, inquirer.Send(hci.Inquiry{LAP: hci.GIAC, Length: 4}))
	streamtest.AssertEmits(t, inquirer.Events(), hci.InquiryComplete(), streamtest.WithTimeout(time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReadLocalNameAndReset(t *testing.T) {
	_, ctrls := newAir(t, "cert")
	cert := ctrls[0]

	cmd, err := hci.NewWriteLocalName("cert-name")
	require.NoError(t, err)
	require.NoError(t, cert.Send(cmd))
	require.NoError(t, cert.Send(hci.ReadLocalName{}))
	require.NoError(t, cert.Send(hci.Reset{}))
	require.NoError(t, cert.Send(hci.ReadLocalName{}))

	subj := streamtest.AssertThat(t, cert.Events()).Within(time.Second)
	readName := hci.CommandComplete(hci.OpReadLocalName)

	subj.Emits(hci.CommandComplete(hci.OpWriteLocalName))
	rec := streamtest.RequireEmits(t, cert.Events(), readName, streamtest.WithTimeout(time.Second))
	assert.Equal(t, "cert-name", rec.Event.RemoteName)

	subj.Emits(readName, hci.CommandComplete(hci.OpReset), readName)
	last := cert.Events().Tail(1)
	require.Len(t, last, 1)
	assert.Empty(t, last[0].Event.RemoteName)
}

func TestInvalidInquiryMode(t *testing.T) {
	_, ctrls := newAir(t, "dut")
	dut := ctrls[0]
	require.NoError(t, dut.Send(hci.WriteInquiryMode{Mode: hci.InquiryMode(7)}))

	rec := streamtest.RequireEmits(
		t,
		dut.Events(),
		hci.CommandComplete(hci.OpWriteInquiryMode),
		streamtest.WithTimeout(time.Second),
	)
	assert.Equal(t, hci.StatusInvalidParameters, rec.Event.Status)
}

func TestUnsupportedCommand(t *testing.T) {
	_, ctrls := newAir(t, "dut")
	dut := ctrls[0]

	assert.Error(t, dut.Send(vendorCommand{}))
	rec := streamtest.RequireEmits(
		t,
		dut.Events(),
		hci.HasCode(hci.EventCommandComplete),
		streamtest.WithTimeout(time.Second),
	)
	assert.Equal(t, hci.StatusUnknownCommand, rec.Event.Status)
	assert.Equal(t, hci.OpCode(0xFC01), rec.Event.OpCode)
}

func TestAirLifecycle(t *testing.T) {
	addr := hci.MustParseAddress("00:00:00:00:00:01")
	air := sim.NewAir()

	first, err := air.NewController("first", sim.WithAddress(addr))
	require.NoError(t, err)
	assert.Equal(t, addr, first.Address())

	_, err = air.NewController("second", sim.WithAddress(addr))
	assert.Error(t, err)
	assert.Len(t, air.Controllers(), 1)

	air.Close()
	air.Close()

	assert.True(t, first.Events().Closed())
	assert.ErrorIs(t, first.Send(hci.Reset{}), sim.ErrAirClosed)
	_, err = air.NewController("third")
	assert.ErrorIs(t, err, sim.ErrAirClosed)
}
