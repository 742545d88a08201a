package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Command errors.
var (
	ErrCommandNotFound   = errors.New("command not found")
	ErrInvalidArgument   = errors.New("invalid command argument")
	ErrCommandNotAllowed = errors.New("command not allowed")
)

// CommandHandler is the function signature for command handlers.
// arg is nil for commands whose input type is DevVoid.
type CommandHandler func(ctx context.Context, arg any) (any, error)

// CommandMetadata describes a command's properties.
type CommandMetadata struct {
	// Name is the command name.
	Name string

	// InType is the argument type.
	InType wire.DataType

	// OutType is the result type.
	OutType wire.DataType

	// Description is a human-readable description.
	Description string
}

// Command represents a command instance with its handler.
type Command struct {
	metadata *CommandMetadata
	handler  CommandHandler
}

// NewCommand creates a new command with the given metadata and handler.
func NewCommand(meta *CommandMetadata, handler CommandHandler) *Command {
	return &Command{
		metadata: meta,
		handler:  handler,
	}
}

// Name returns the command name.
func (c *Command) Name() string {
	return c.metadata.Name
}

// Metadata returns the command metadata.
func (c *Command) Metadata() *CommandMetadata {
	return c.metadata
}

// Info returns the wire description of the command.
func (c *Command) Info() wire.CommandInfo {
	return wire.CommandInfo{Name: c.metadata.Name, InType: c.metadata.InType, OutType: c.metadata.OutType}
}

// Invoke executes the command with the given argument.
func (c *Command) Invoke(ctx context.Context, arg any) (any, error) {
	if c.metadata.InType == wire.DataTypeVoid && arg != nil {
		return nil, fmt.Errorf("%w: %s takes no argument", ErrInvalidArgument, c.metadata.Name)
	}
	if c.metadata.InType != wire.DataTypeVoid && arg == nil {
		return nil, fmt.Errorf("%w: %s needs a %s argument", ErrInvalidArgument, c.metadata.Name, c.metadata.InType)
	}
	if c.handler == nil {
		return nil, ErrCommandNotFound
	}
	return c.handler(ctx, arg)
}

// SetHandler sets or replaces the command handler.
func (c *Command) SetHandler(handler CommandHandler) {
	c.handler = handler
}

// PipeReader produces the content of a pipe.
type PipeReader func(ctx context.Context) (*wire.PipeBlob, error)

// Pipe is a named read-only data blob.
type Pipe struct {
	name   string
	reader PipeReader
}

// NewPipe creates a pipe served by reader.
func NewPipe(name string, reader PipeReader) *Pipe {
	return &Pipe{name: name, reader: reader}
}

// Name returns the pipe name.
func (p *Pipe) Name() string {
	return p.name
}

// Read returns the current pipe content.
func (p *Pipe) Read(ctx context.Context) (*wire.PipeBlob, error) {
	blob, err := p.reader(ctx)
	if err != nil {
		return nil, err
	}
	if blob.Name == "" {
		blob.Name = p.name
	}
	return blob, nil
}
