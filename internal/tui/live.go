// Package tui prints a tracer profile to a plain terminal while a
// transient run progresses.
package tui

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/san-kum/tracersim/internal/dynamo"
)

const (
	width       = 60
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
	year        = 365.25 * 86400
)

// LiveRenderer draws one horizontal bar per box of a tracer, shallowest
// first, at most frameRate times per second. It implements dynamo.Observer.
type LiveRenderer struct {
	out       io.Writer
	model     string
	tracer    string
	k, nt     int
	order     []int
	frameRate int
	lastFrame time.Time
	frames    int
}

// NewLiveRenderer draws tracer k of nt. depth orders the boxes.
func NewLiveRenderer(out io.Writer, model, tracer string, k, nt int, depth []float64, frameRate int) *LiveRenderer {
	order := make([]int, len(depth))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return depth[order[a]] < depth[order[b]] })
	return &LiveRenderer{
		out:       out,
		model:     model,
		tracer:    tracer,
		k:         k,
		nt:        nt,
		order:     order,
		frameRate: max(frameRate, 1),
	}
}

func (r *LiveRenderer) OnStep(x dynamo.State, t float64) {
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.Render(x, t)
}

// Frames returns the number of frames drawn.
func (r *LiveRenderer) Frames() int { return r.frames }

// Render draws x unconditionally.
func (r *LiveRenderer) Render(x dynamo.State, t float64) {
	field := x.Split(r.nt)[r.k]
	hi := 0.0
	for _, v := range field {
		hi = math.Max(hi, math.Abs(v))
	}
	if hi == 0 {
		hi = 1
	}

	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  %s  t=%.1f yr\n", r.model, r.tracer, t/year)
	b.WriteString("  " + strings.Repeat("-", width+14) + "\n")
	for _, box := range r.order {
		v := field[box]
		n := int(math.Round(math.Abs(v) / hi * width))
		c := "#"
		if v < 0 {
			c = "-"
		}
		fmt.Fprintf(&b, "  %4d %-*s %.4g\n", box, width, strings.Repeat(c, n), v)
	}
	b.WriteString("  " + strings.Repeat("-", width+14) + "\n")

	fmt.Fprint(r.out, b.String())
	r.frames++
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
