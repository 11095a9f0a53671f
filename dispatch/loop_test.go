// frame-decoder - decode barcodes from camera preview frames
//  Copyright (C) 2021, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCacophonyProject/frame-decoder/decoder"
	"github.com/TheCacophonyProject/frame-decoder/frame"
	"github.com/TheCacophonyProject/frame-decoder/luminance"
	"github.com/TheCacophonyProject/frame-decoder/testframe"
	"github.com/TheCacophonyProject/frame-decoder/throttle"
)

// markDecoder "decodes" any view whose first pixel is non-zero, using
// that pixel as the text.
type markDecoder struct {
	views []*luminance.View
}

func (d *markDecoder) Attempt(view *luminance.View) *decoder.Symbol {
	d.views = append(d.views, view)
	mark, err := view.At(0, 0)
	if err != nil || mark == 0 {
		return nil
	}
	text := fmt.Sprint(mark)
	return &decoder.Symbol{
		Payload: []byte(text),
		Text:    text,
		Format:  gozxing.BarcodeFormat_QR_CODE,
	}
}

type savedFrame struct {
	data          []byte
	width, height int
	inboxLen      int
}

type fakePersister struct {
	inbox *Inbox
	saved []savedFrame
	err   error
}

func (p *fakePersister) Save(data []byte, width, height int) (string, error) {
	p.saved = append(p.saved, savedFrame{data: data, width: width, height: height, inboxLen: p.inbox.Len()})
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("IMG_%d.jpg", len(p.saved)), nil
}

func newTestLoop(t *testing.T, conf Config, engine Decoder) (*Loop, *Inbox, *fakePersister, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	inbox := NewInbox()
	persister := &fakePersister{inbox: inbox}
	loop, err := New(conf, engine, persister, inbox, log)
	require.NoError(t, err)
	return loop, inbox, persister, hook
}

// markedFrame returns a 4x4 luminance frame whose pixel that ends up at
// the rotated origin holds mark.
func markedFrame(mark byte) frame.FrameBuffer {
	data := make([]byte, 16)
	// Clockwise rotation moves the bottom left pixel to the origin.
	data[12] = mark
	return frame.FrameBuffer{Data: data, Width: 4, Height: 4}
}

func drain(t *testing.T, inbox *Inbox) []Outcome {
	var out []Outcome
	for inbox.Len() > 0 {
		o, err := inbox.Next(context.Background())
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func texts(outcomes []Outcome) []string {
	var out []string
	for _, o := range outcomes {
		if o.Succeeded() {
			out = append(out, o.Success.Text)
		} else {
			out = append(out, "-")
		}
	}
	return out
}

func TestOneMessagePerFrameInOrder(t *testing.T) {
	loop, inbox, _, _ := newTestLoop(t, DefaultConfig(), new(markDecoder))

	require.NoError(t, loop.Submit(markedFrame(1)))
	require.NoError(t, loop.Submit(markedFrame(0)))
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: make([]byte, 3), Width: 4, Height: 4}))
	require.NoError(t, loop.Submit(markedFrame(2)))
	require.NoError(t, loop.Submit(markedFrame(0)))
	require.NoError(t, loop.Submit(markedFrame(3)))
	loop.RequestShutdown()
	loop.Run()

	assert.Equal(t, []string{"1", "-", "-", "2", "-", "3"}, texts(drain(t, inbox)))

	stats := loop.Stats()
	assert.Equal(t, 6, stats.Frames)
	assert.Equal(t, 3, stats.Decoded)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 3, stats.Snapshots)
	assert.Equal(t, "IMG_3.jpg", stats.LastSnapshot)
}

func TestDeliveryPrecedesSnapshot(t *testing.T) {
	loop, _, persister, _ := newTestLoop(t, DefaultConfig(), new(markDecoder))

	require.NoError(t, loop.Submit(markedFrame(7)))
	loop.RequestShutdown()
	loop.Run()

	require.Len(t, persister.saved, 1)
	assert.Equal(t, 1, persister.saved[0].inboxLen)
}

func TestSnapshotFailureStillDelivers(t *testing.T) {
	loop, inbox, persister, hook := newTestLoop(t, DefaultConfig(), new(markDecoder))
	persister.err = errors.New("failed to create directory: permission denied")

	require.NoError(t, loop.Submit(markedFrame(5)))
	require.NoError(t, loop.Submit(markedFrame(6)))
	loop.RequestShutdown()
	loop.Run()

	assert.Equal(t, []string{"5", "6"}, texts(drain(t, inbox)))
	stats := loop.Stats()
	assert.Equal(t, 0, stats.Snapshots)
	assert.Equal(t, 2, stats.SnapshotErrors)

	var warnings int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "failed to save snapshot" {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestThrottledSnapshotsAreNotErrors(t *testing.T) {
	log, _ := test.NewNullLogger()
	inbox := NewInbox()
	base := &fakePersister{inbox: inbox}
	throttled := throttle.NewThrottledPersister(base, &throttle.ThrottlerConfig{
		ApplyThrottling: true,
		BucketSize:      1,
		RefillInterval:  time.Hour,
	}, nil)
	loop, err := New(DefaultConfig(), new(markDecoder), throttled, inbox, log)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.NoError(t, loop.Submit(markedFrame(byte(i))))
	}
	loop.RequestShutdown()
	loop.Run()

	assert.Equal(t, []string{"1", "2", "3"}, texts(drain(t, inbox)))
	assert.Len(t, base.saved, 1)
	stats := loop.Stats()
	assert.Equal(t, 1, stats.Snapshots)
	assert.Equal(t, 0, stats.SnapshotErrors)
}

func TestNoSnapshotsWithoutPersister(t *testing.T) {
	log, _ := test.NewNullLogger()
	inbox := NewInbox()
	loop, err := New(DefaultConfig(), new(markDecoder), nil, inbox, log)
	require.NoError(t, err)

	require.NoError(t, loop.Submit(markedFrame(1)))
	loop.RequestShutdown()
	loop.Run()

	assert.Equal(t, []string{"1"}, texts(drain(t, inbox)))
	assert.Equal(t, 0, loop.Stats().Snapshots)
}

func TestShutdownRefusesLaterFrames(t *testing.T) {
	engine := new(markDecoder)
	loop, inbox, _, _ := newTestLoop(t, DefaultConfig(), engine)

	loop.RequestShutdown()
	assert.True(t, errors.Is(loop.Submit(markedFrame(1)), ErrShutdown))
	loop.RequestShutdown()
	loop.Run()

	assert.Equal(t, Stopped, loop.State())
	assert.Equal(t, 0, inbox.Len())
	assert.Empty(t, engine.views)
	select {
	case <-loop.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestFramesBeforeShutdownAreDecoded(t *testing.T) {
	loop, inbox, _, _ := newTestLoop(t, DefaultConfig(), new(markDecoder))
	assert.Equal(t, Running, loop.State())

	require.NoError(t, loop.Submit(markedFrame(1)))
	require.NoError(t, loop.Submit(markedFrame(2)))
	loop.RequestShutdown()
	loop.Run()

	assert.Equal(t, []string{"1", "2"}, texts(drain(t, inbox)))
	assert.Equal(t, 0, loop.Stats().QueuedRequests)
}

func TestRunInBackground(t *testing.T) {
	loop, inbox, _, _ := newTestLoop(t, DefaultConfig(), new(markDecoder))
	go loop.Run()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []string
	for i := 1; i <= 20; i++ {
		require.NoError(t, loop.Submit(markedFrame(byte(i))))
		o, err := inbox.Next(ctx)
		require.NoError(t, err)
		require.True(t, o.Succeeded())
		got = append(got, o.Success.Text)
	}
	loop.RequestShutdown()

	select {
	case <-loop.Done():
	case <-ctx.Done():
		t.Fatal("loop did not stop")
	}
	assert.Len(t, got, 20)
	assert.Equal(t, "20", got[19])
}

func TestViewIsRotatedClockwise(t *testing.T) {
	engine := new(markDecoder)
	loop, _, persister, _ := newTestLoop(t, DefaultConfig(), engine)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: data, Width: 4, Height: 3}))
	loop.RequestShutdown()
	loop.Run()

	require.Len(t, engine.views, 1)
	view := engine.views[0]
	assert.Equal(t, 3, view.Width())
	assert.Equal(t, 4, view.Height())
	var got []byte
	for y := 0; y < view.Height(); y++ {
		row, err := view.Row(y, nil)
		require.NoError(t, err)
		got = append(got, row...)
	}
	assert.Equal(t, []byte{9, 5, 1, 10, 6, 2, 11, 7, 3, 12, 8, 4}, got)

	require.Len(t, persister.saved, 1)
	assert.Equal(t, 3, persister.saved[0].width)
	assert.Equal(t, 4, persister.saved[0].height)
	assert.Equal(t, got, persister.saved[0].data)
}

func TestOtherOrientations(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	for orientation, first := range map[string]byte{
		NoRotation:       1,
		CounterClockwise: 4,
	} {
		engine := new(markDecoder)
		loop, inbox, _, _ := newTestLoop(t, Config{Orientation: orientation}, engine)
		require.NoError(t, loop.Submit(frame.FrameBuffer{Data: data, Width: 4, Height: 3}))
		loop.RequestShutdown()
		loop.Run()

		assert.Equal(t, []string{fmt.Sprint(first)}, texts(drain(t, inbox)), orientation)
	}
}

func TestFramingRect(t *testing.T) {
	engine := new(markDecoder)
	conf := Config{
		Orientation: NoRotation,
		FramingRect: Rect{Left: 1, Top: 1, Width: 2, Height: 2},
	}
	loop, inbox, persister, _ := newTestLoop(t, conf, engine)

	data := make([]byte, 16)
	data[5] = 9
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: data, Width: 4, Height: 4}))
	// Framing rect doesn't fit in a 2x2 frame.
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: make([]byte, 4), Width: 2, Height: 2}))
	loop.RequestShutdown()
	loop.Run()

	outcomes := drain(t, inbox)
	assert.Equal(t, []string{"9", "-"}, texts(outcomes))
	assert.Equal(t, image.Rect(0, 0, 2, 2), outcomes[0].Success.Cropped.Bounds())
	assert.Equal(t, uint8(9), outcomes[0].Success.Cropped.GrayAt(0, 0).Y)
	assert.Equal(t, 1, loop.Stats().Rejected)

	// The whole frame is saved, not just the framing rect.
	require.Len(t, persister.saved, 1)
	assert.Equal(t, 4, persister.saved[0].width)
	assert.Equal(t, 16, len(persister.saved[0].data))
}

func TestDecodesQRFrame(t *testing.T) {
	engine, err := decoder.New(decoder.DefaultConfig())
	require.NoError(t, err)
	loop, inbox, persister, _ := newTestLoop(t, DefaultConfig(), engine)

	tfm := testframe.NewTestFrameMaker(240, 200)
	qr, err := tfm.QR("cacophony")
	require.NoError(t, err)
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: tfm.WithChroma(qr), Width: 240, Height: 200}))
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: tfm.WithChroma(tfm.Blank()), Width: 240, Height: 200}))
	require.NoError(t, loop.Submit(frame.FrameBuffer{Data: tfm.WithChroma(qr), Width: 240, Height: 200}))
	loop.RequestShutdown()
	loop.Run()

	outcomes := drain(t, inbox)
	require.Len(t, outcomes, 3)
	require.True(t, outcomes[0].Succeeded())
	assert.Equal(t, "cacophony", outcomes[0].Success.Text)
	assert.Equal(t, gozxing.BarcodeFormat_QR_CODE, outcomes[0].Success.Format)
	assert.Equal(t, image.Rect(0, 0, 200, 240), outcomes[0].Success.Cropped.Bounds())
	assert.False(t, outcomes[1].Succeeded())
	require.True(t, outcomes[2].Succeeded())
	assert.Equal(t, "cacophony", outcomes[2].Success.Text)

	assert.Equal(t, 3, engine.Attempts())
	assert.Equal(t, 3, engine.Resets())

	require.Len(t, persister.saved, 2)
	assert.Equal(t, 200, persister.saved[0].width)
	assert.Equal(t, 240, persister.saved[0].height)
	assert.Len(t, persister.saved[0].data, 240*200)
}

func TestConfigValidate(t *testing.T) {
	conf := DefaultConfig()
	assert.NoError(t, conf.Validate())

	conf.Orientation = "upside-down"
	assert.EqualError(t, conf.Validate(), `unknown orientation "upside-down"`)

	conf = DefaultConfig()
	conf.FramingRect.Left = -1
	assert.Error(t, conf.Validate())

	log, _ := test.NewNullLogger()
	_, err := New(Config{Orientation: "sideways"}, new(markDecoder), nil, NewInbox(), log)
	assert.Error(t, err)
}

func TestInboxNextHonoursContext(t *testing.T) {
	inbox := NewInbox()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inbox.Next(ctx)
	assert.Equal(t, context.Canceled, err)

	inbox.DecodeFailed()
	inbox.DecodeSucceeded(Success{Text: "x", Elapsed: 1500 * time.Microsecond})
	o, err := inbox.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, o.Succeeded())
	o, err = inbox.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), o.Success.ElapsedMs())
}
