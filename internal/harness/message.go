package harness

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/andrei-cloud/go_memtest/internal/status"
)

// Message defines the interface for harness command messages.
type Message interface {
	Get(field string) []byte
	Set(field string, val []byte)
	CommandCode() string
	Trace() string
}

// BaseMessage implements Message and holds command fields.
type BaseMessage struct {
	cmdCode     string
	description string
	Fields      map[string][]byte
}

// NewBaseMessage creates a new BaseMessage with the given code and description.
func NewBaseMessage(cmdCode, description string) *BaseMessage {
	return &BaseMessage{cmdCode: cmdCode, description: description, Fields: make(map[string][]byte)}
}

func (m *BaseMessage) Get(field string) []byte {
	return m.Fields[field]
}

func (m *BaseMessage) Set(field string, val []byte) {
	m.Fields[field] = val
}

func (m *BaseMessage) CommandCode() string {
	return m.cmdCode
}

func (m *BaseMessage) Trace() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Command: %s — %s\n", m.cmdCode, m.description))
	for k, v := range m.Fields {
		buf.WriteString(fmt.Sprintf("\t[%s]=%s\n", k, v))
	}

	return buf.String()
}

// parseFields splits a space-separated payload into named fields. Fields in
// required must be present; fields in optional may be absent but nothing may
// follow them.
func parseFields(
	cmdCode, description string,
	data []byte,
	required, optional []string,
) (*BaseMessage, error) {
	m := NewBaseMessage(cmdCode, description)
	args := bytes.Fields(data)

	if len(args) < len(required) || len(args) > len(required)+len(optional) {
		return nil, status.Err01
	}

	names := append(append([]string{}, required...), optional...)
	for i, arg := range args {
		m.Fields[names[i]] = arg
	}

	return m, nil
}

// GetInt parses the named field as a decimal integer.
func (m *BaseMessage) GetInt(field string) (int, error) {
	v, ok := m.Fields[field]
	if !ok {
		return 0, status.Err01
	}

	n, err := strconv.Atoi(string(v))
	if err != nil {
		return 0, status.Err02
	}

	return n, nil
}

// GetIntDefault parses the named field as an integer, returning def when the
// field is absent.
func (m *BaseMessage) GetIntDefault(field string, def int) (int, error) {
	if _, ok := m.Fields[field]; !ok {
		return def, nil
	}

	return m.GetInt(field)
}

// GetBool parses the named field as a boolean flag.
func (m *BaseMessage) GetBool(field string) (bool, error) {
	v, ok := m.Fields[field]
	if !ok {
		return false, status.Err01
	}

	b, err := strconv.ParseBool(string(v))
	if err != nil {
		return false, status.Err02
	}

	return b, nil
}

// GetBoolDefault parses the named field as a boolean, returning def when the
// field is absent.
func (m *BaseMessage) GetBoolDefault(field string, def bool) (bool, error) {
	if _, ok := m.Fields[field]; !ok {
		return def, nil
	}

	return m.GetBool(field)
}

// GetPointer parses the named field as pointer text.
func (m *BaseMessage) GetPointer(field string) (uint64, error) {
	v, ok := m.Fields[field]
	if !ok {
		return 0, status.Err01
	}

	return ParsePointer(string(v))
}

// NewMalloc parses an MA raw allocation command from payload data.
func NewMalloc(data []byte) (*BaseMessage, error) {
	return parseFields("MA", "Allocate a raw block", data, []string{"NBytes"}, nil)
}

// NewRealloc parses an MR raw reallocation command from payload data.
func NewRealloc(data []byte) (*BaseMessage, error) {
	return parseFields("MR", "Reallocate a raw block", data, []string{"Prior", "NBytes"}, nil)
}

// NewFree parses an MF raw free command from payload data.
func NewFree(data []byte) (*BaseMessage, error) {
	return parseFields("MF", "Free a raw block", data, []string{"Prior"}, nil)
}

// NewMemset parses an MS memory fill command from payload data.
func NewMemset(data []byte) (*BaseMessage, error) {
	return parseFields(
		"MS",
		"Fill a block with a hex pattern",
		data,
		[]string{"Address", "Size", "Hex"},
		nil,
	)
}

// NewMemget parses an MG memory read command from payload data.
func NewMemget(data []byte) (*BaseMessage, error) {
	return parseFields("MG", "Read a block as hex", data, []string{"Address", "Size"}, nil)
}

// NewHighwater parses an MW high-water query from payload data.
func NewHighwater(data []byte) (*BaseMessage, error) {
	return parseFields("MW", "Memory high-water mark", data, nil, []string{"Reset"})
}

// NewMemstatus parses an MO accounting toggle from payload data.
func NewMemstatus(data []byte) (*BaseMessage, error) {
	return parseFields("MO", "Toggle memory-status accounting", data, []string{"Enabled"}, nil)
}

// NewRoundup parses an RU roundup query from payload data.
func NewRoundup(data []byte) (*BaseMessage, error) {
	return parseFields("RU", "Round up an allocation size", data, []string{"NBytes"}, nil)
}

// NewSizeOf parses an SZ size query from payload data.
func NewSizeOf(data []byte) (*BaseMessage, error) {
	return parseFields("SZ", "Usable size of a block", data, []string{"Address"}, nil)
}

// NewFaultConfig parses an FC fault configuration command from payload data.
func NewFaultConfig(data []byte) (*BaseMessage, error) {
	return parseFields(
		"FC",
		"Configure allocation fault injection",
		data,
		[]string{"Counter"},
		[]string{"Repeat"},
	)
}

// NewFaultInstall parses an FI install toggle from payload data.
func NewFaultInstall(data []byte) (*BaseMessage, error) {
	return parseFields("FI", "Install or remove the fault layer", data, []string{"Install"}, nil)
}

// NewPageCache parses a PC page-pool configuration command from payload data.
func NewPageCache(data []byte) (*BaseMessage, error) {
	return parseFields("PC", "Install the pooled page allocator", data, []string{"Size", "N"}, nil)
}
