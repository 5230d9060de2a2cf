package affinity_test

import (
	"fmt"

	"github.com/kolkov/affinity/affinity"
)

var (
	opSetText     = affinity.Op("affinity_test.button", "SetText(string)")
	opAddListener = affinity.Op("affinity_test.button", "AddClickListener(func())")
)

type button struct {
	text string
}

// SetText has the shape the weaver produces for a guarded method.
func (b *button) SetText(s string) {
	defer affinity.Exit(affinity.EnterStrict(opSetText))
	b.text = s
}

func (b *button) AddClickListener(f func()) {
	defer affinity.Exit(affinity.Enter(opAddListener))
	_ = f
}

// runOn runs f on a goroutine named name and waits for it.
func runOn(name string, f func()) {
	done := make(chan struct{})
	affinity.Go(name, func() {
		defer close(done)
		f()
	})
	<-done
}

// Example demonstrates reporting a call from the wrong goroutine.
func Example() {
	_ = affinity.Configure(nil)
	affinity.SetListener(affinity.ListenerFunc(func(p affinity.Problem) {
		fmt.Println(p.Description())
	}))

	b := &button{}
	runOn("event-loop", func() { b.SetText("ok") })
	runOn("worker-1", func() { b.SetText("not ok") })

	// Output:
	// The github.com/kolkov/affinity/affinity_test.button.SetText method called from worker-1 thread
}

// Example_buffered shows problems produced before a listener exists.
func Example_buffered() {
	_ = affinity.Configure(nil)

	b := &button{}
	for _, name := range []string{"worker-1", "worker-2"} {
		runOn(name, func() { b.SetText("x") })
	}

	n := affinity.SetListener(affinity.ListenerFunc(func(p affinity.Problem) {
		fmt.Println(p.Thread().Name)
	}))
	fmt.Println("delivered", n)

	// Output:
	// worker-1
	// worker-2
	// delivered 2
}

// Example_exempt shows that listener registration is safe from any
// goroutine.
func Example_exempt() {
	_ = affinity.Configure(nil)
	c := affinity.NewCollector(10)
	affinity.SetListener(c)

	b := &button{}
	runOn("worker-1", func() { b.AddClickListener(func() {}) })
	fmt.Println("problems:", c.Len())

	// Output:
	// problems: 0
}
