package devcore

import (
	"fmt"
	"strings"

	"github.com/PepcyCh/bisemutum-engine-sub001/rhi"
)

// Recorder accumulates native commands for one encoder. Backend encoders
// embed it and call Record once per native command.
//
// While a pass sub-encoder is open the recorder is invalid: Record panics
// until EndPass restores it.
type Recorder struct {
	cmd    *CommandBuffer
	labels []string
	inPass bool
	done   bool
}

// NewRecorder starts recording for queue.
func NewRecorder(queue rhi.QueueType) Recorder {
	return Recorder{cmd: &CommandBuffer{queue: queue}}
}

// QueueType returns the queue being recorded for.
func (r *Recorder) QueueType() rhi.QueueType { return r.cmd.queue }

// Valid reports whether outer commands may be recorded.
func (r *Recorder) Valid() bool { return !r.inPass && !r.done }

// Record appends a native command. op runs on the queue timeline and may
// be nil for commands with no host effect.
func (r *Recorder) Record(name string, op func()) {
	if !r.Valid() {
		panic(fmt.Sprintf("devcore: %s recorded on an invalid encoder", name))
	}
	r.record(name, op)
}

// RecordInPass appends a command from inside a pass sub-encoder.
func (r *Recorder) RecordInPass(name string, op func()) {
	if !r.inPass {
		panic(fmt.Sprintf("devcore: %s recorded outside a pass", name))
	}
	r.record(name, op)
}

func (r *Recorder) record(name string, op func()) {
	r.cmd.trace = append(r.cmd.trace, name)
	if op != nil {
		r.cmd.ops = append(r.cmd.ops, op)
	}
}

// BeginPass invalidates the recorder until EndPass. An empty name records
// nothing; passes without a native begin command still block the encoder.
func (r *Recorder) BeginPass(name string, op func()) {
	if !r.Valid() {
		panic(fmt.Sprintf("devcore: pass %q begun on an invalid encoder", name))
	}
	if name != "" {
		r.record(name, op)
	}
	r.inPass = true
}

// EndPass closes the open pass and restores validity.
func (r *Recorder) EndPass(name string) {
	if !r.inPass {
		panic("devcore: EndPass without an open pass")
	}
	if name != "" {
		r.record(name, nil)
	}
	r.inPass = false
}

// PushLabel opens a debug label region.
func (r *Recorder) PushLabel(native, label string) {
	r.labels = append(r.labels, label)
	r.Record(native+"("+label+")", nil)
}

// PopLabel closes the innermost label region.
func (r *Recorder) PopLabel(native string) {
	if len(r.labels) == 0 {
		panic("devcore: PopLabel without PushLabel")
	}
	r.labels = r.labels[:len(r.labels)-1]
	r.Record(native, nil)
}

// Finish ends recording. Open labels are a programming error.
func (r *Recorder) Finish() *CommandBuffer {
	if r.inPass {
		panic("devcore: Finish with an open pass")
	}
	if len(r.labels) > 0 {
		panic("devcore: Finish with open labels: " + strings.Join(r.labels, ", "))
	}
	r.done = true
	return r.cmd
}
