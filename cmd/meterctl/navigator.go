package main

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleNavigator tells the user to sign in again. Concurrent requests may
// end the session together; the notice is printed once.
type ConsoleNavigator struct {
	out   io.Writer
	route string
	once  sync.Once
}

// NewConsoleNavigator creates a navigator writing to out.
func NewConsoleNavigator(out io.Writer, route string) *ConsoleNavigator {
	return &ConsoleNavigator{out: out, route: route}
}

// RedirectToSignIn implements http_middleware.Navigator.
func (n *ConsoleNavigator) RedirectToSignIn() {
	n.once.Do(func() {
		fmt.Fprintf(n.out, "Your session has ended. Sign in again (%s): meterctl login\n", n.route)
	})
}
