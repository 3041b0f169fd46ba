// Package command defines the keymesh-cli commands.
//
// Commands are built on urfave/cli/v2. Each invocation loads the layered
// configuration, opens the credential store and wires the request
// pipeline, session manager and API key service on top of it.
package command
