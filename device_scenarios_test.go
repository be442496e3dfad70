package iolink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-iolink/iolink/internal/command"
	"github.com/go-iolink/iolink/internal/message"
)

const (
	vendorNameIndex uint16 = 0x0010
	vendorNameSub   uint8  = 0
)

func buildFrame(t *testing.T, pdSize, odSize int, channel message.Channel, address uint8, pd, od []byte) []byte {
	t.Helper()
	mc := message.EncodeMC(message.MC{Channel: channel, Address: address})
	pdBuf := make([]byte, pdSize)
	copy(pdBuf, pd)
	odBuf := make([]byte, odSize)
	copy(odBuf, od)
	ckt := message.CKT(0, mc, pdBuf, odBuf)
	frame := []byte{mc, ckt}
	frame = append(frame, pdBuf...)
	frame = append(frame, odBuf...)
	return frame
}

func buildBadChecksumFrame(t *testing.T, pdSize, odSize int) []byte {
	t.Helper()
	frame := buildFrame(t, pdSize, odSize, message.ChannelProcess, 0, nil, nil)
	frame[1] ^= 0xFF
	return frame
}

func commandFrame(t *testing.T, pdSize, odSize int, id command.ID) []byte {
	t.Helper()
	return buildFrame(t, pdSize, odSize, message.ChannelPage, uint8(id), nil, nil)
}

func genericFrame(t *testing.T, pdSize, odSize int) []byte {
	t.Helper()
	return buildFrame(t, pdSize, odSize, message.ChannelProcess, 0, nil, nil)
}

// newTestDevice constructs a Device with 1-byte PD/OD segments, wired to
// a MockPhysicalLayer and MockApplication for direct inspection.
func newTestDevice(t *testing.T, params []ParameterSpec) (*Device, *MockPhysicalLayer, *MockApplication) {
	t.Helper()
	pl := NewMockPhysicalLayer()
	app := NewMockApplication()
	dev, err := NewDevice(DeviceParams{
		PhysicalLayer: pl,
		Application:   app,
		VendorID:      0x1234,
		DeviceID:      0x5678,
		PDSize:        1,
		ODSize:        1,
		Parameters:    params,
	}, nil)
	require.NoError(t, err)
	return dev, pl, app
}

// bringToOperate drives spec.md scenario 1's canonical startup handshake
// (WakeUp, MasterIdent, PreOperate, Operate) and leaves the device in
// Operate.
func bringToOperate(t *testing.T, dev *Device, pl *MockPhysicalLayer) {
	t.Helper()
	require.NoError(t, dev.WakeUp())
	require.NoError(t, dev.Poll(time.Now()))

	for _, id := range []command.ID{command.MasterIdent, command.PreOperate, command.Operate} {
		pl.QueueInbound(commandFrame(t, 1, 1, id))
		require.NoError(t, dev.Poll(time.Now()))
	}
}

// Scenario 1: cold start through Operate, a single Control_ind(Operate)
// fire, and Process Data valid on the first full cycle.
func TestScenarioColdStartToOperate(t *testing.T) {
	dev, pl, app := newTestDevice(t, nil)

	require.Equal(t, "Inactive", dev.State().DLState.String())
	require.NoError(t, dev.AL_SetOutput_req([]byte{0x42}))

	bringToOperate(t, dev, pl)

	info := dev.State()
	assert.Equal(t, "Operate", info.DLState.String())

	operateCount := 0
	for _, ev := range app.ControlEvents {
		if ev == ControlOperate {
			operateCount++
		}
	}
	assert.Equal(t, 1, operateCount, "Control_ind(Operate) must fire exactly once")

	require.NotEmpty(t, app.PDCycles)
	assert.True(t, app.PDCycles[len(app.PDCycles)-1], "PD should be valid on the first full Operate cycle")
}

// Scenario 2: ISDU read of a vendor name parameter.
func TestScenarioISDUReadVendorName(t *testing.T) {
	dev, pl, app := newTestDevice(t, []ParameterSpec{
		{Key: ParamKey{Index: vendorNameIndex, Sub: vendorNameSub}, Access: ReadOnly, MaxLen: 8, Initial: []byte("ACME")},
	})
	bringToOperate(t, dev, pl)

	require.NoError(t, dev.AL_Read_req(vendorNameIndex, vendorNameSub))

	for i := 0; i < 6 && len(app.ReadConfirms) == 0; i++ {
		pl.QueueInbound(genericFrame(t, 1, 1))
		require.NoError(t, dev.Poll(time.Now()))
	}

	require.Len(t, app.ReadConfirms, 1)
	got := app.ReadConfirms[0]
	assert.Equal(t, ResultDone, got.Result)
	assert.Equal(t, []byte("ACME"), got.Data)
}

// Scenario 3: a write to a locked persistent parameter is refused
// without modifying the stored value.
func TestScenarioWriteRefusedWhenStorageLocked(t *testing.T) {
	key := ParamKey{Index: 0x0020, Sub: 0}
	dev, pl, _ := newTestDevice(t, []ParameterSpec{
		{Key: key, Access: ReadWrite, Persistent: true, MaxLen: 4, Initial: []byte{1, 2, 3, 4}},
	})
	bringToOperate(t, dev, pl)

	pl.QueueInbound(commandFrame(t, 1, 1, command.DataStorageLock))
	require.NoError(t, dev.Poll(time.Now()))

	err := dev.AL_Write_req(key.Index, key.Sub, []byte{9, 9, 9, 9})
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrLocked))
}

// Scenario 4: a checksum storm in Operate demotes the link to Startup,
// invalidates Process Data, and fires Control_ind(Fallback).
func TestScenarioChecksumStormDemotesToStartup(t *testing.T) {
	dev, pl, app := newTestDevice(t, nil)
	bringToOperate(t, dev, pl)
	require.NoError(t, dev.AL_SetOutput_req([]byte{0x01}))

	for i := 0; i < 3; i++ {
		pl.QueueInbound(buildBadChecksumFrame(t, 1, 1))
		require.NoError(t, dev.Poll(time.Now()))
	}

	info := dev.State()
	assert.Equal(t, "Startup", info.DLState.String())

	_, valid := dev.AL_GetInput_req(make([]byte, 1))
	assert.False(t, valid, "Process Data must be invalid after link degradation")

	assert.Contains(t, app.ControlEvents, ControlFallback)
}

// Scenario 5: event appear/disappear pairing, with a redundant
// disappear silently dropped.
func TestScenarioEventAppearDisappearPairing(t *testing.T) {
	dev, pl, _ := newTestDevice(t, nil)
	bringToOperate(t, dev, pl)

	const code uint16 = 0x8001
	dev.AL_Event_req(code, EventAppear, SeverityWarning)
	dev.AL_Event_req(code, EventDisappear, SeverityWarning)
	dev.AL_Event_req(code, EventDisappear, SeverityWarning) // redundant, dropped

	var kinds []byte
	for i := 0; i < 4; i++ {
		pl.QueueInbound(genericFrame(t, 1, 1))
		require.NoError(t, dev.Poll(time.Now()))
	}
	for _, frame := range pl.Transmitted() {
		if len(frame) < 2+1+1 {
			continue
		}
		od := frame[2+1:]
		if len(od) >= 3 && (od[0] != 0 || od[1] != 0) {
			kinds = append(kinds, od[2]>>4)
		}
	}

	require.Len(t, kinds, 2, "expected exactly an appear and a disappear, redundant disappear dropped")
	assert.Equal(t, byte(0), kinds[0]) // Appear
	assert.Equal(t, byte(1), kinds[1]) // Disappear
}

// Scenario 6: an aborted ISDU read reports AL_Read_cnf(Aborted) and
// frees the OD slot for the next transaction.
func TestScenarioAbortedISDURead(t *testing.T) {
	dev, pl, app := newTestDevice(t, []ParameterSpec{
		{Key: ParamKey{Index: vendorNameIndex, Sub: vendorNameSub}, Access: ReadOnly, MaxLen: 8, Initial: []byte("ACME")},
	})
	bringToOperate(t, dev, pl)

	require.NoError(t, dev.AL_Read_req(vendorNameIndex, vendorNameSub))
	dev.AL_Abort_req()

	for i := 0; i < 6 && len(app.ReadConfirms) == 0; i++ {
		pl.QueueInbound(genericFrame(t, 1, 1))
		require.NoError(t, dev.Poll(time.Now()))
	}

	require.Len(t, app.ReadConfirms, 1)
	assert.Equal(t, ResultAborted, app.ReadConfirms[0].Result)

	// The OD slot is free: a fresh transaction starts without error.
	require.NoError(t, dev.AL_Read_req(vendorNameIndex, vendorNameSub))
}
