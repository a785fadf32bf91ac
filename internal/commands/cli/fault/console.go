package fault

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const (
	fieldTypeRadio = iota
	fieldTypeNumeric
)

type option struct {
	value       string
	description string
}

type fieldConfig struct {
	name         string
	description  string
	fieldType    int
	options      []option // For radio fields.
	selected     int      // For radio fields.
	numericValue string   // For numeric fields.
	minValue     int      // For numeric fields.
	maxValue     int      // For numeric fields.
	digits       int      // For numeric fields (zero-padding).
}

type marchFormModel struct {
	params       marchParams
	currentField int
	fields       []fieldConfig
	done         bool
	cancelled    bool
}

// newMarchFormModel creates a new TUI model for configuring an allocation
// march.
func newMarchFormModel() marchFormModel {
	fields := []fieldConfig{
		{
			name:         "Delay",
			description:  "Successful allocations before the first failure",
			fieldType:    fieldTypeNumeric,
			numericValue: "00",
			minValue:     0,
			maxValue:     99,
			digits:       2,
		},
		{
			name:         "Repeat",
			description:  "Number of consecutive failures",
			fieldType:    fieldTypeNumeric,
			numericValue: "01",
			minValue:     1,
			maxValue:     99,
			digits:       2,
		},
		{
			name:         "Allocs",
			description:  "Allocations to attempt",
			fieldType:    fieldTypeNumeric,
			numericValue: "10",
			minValue:     1,
			maxValue:     99,
			digits:       2,
		},
		{
			name:         "Size",
			description:  "Bytes per allocation",
			fieldType:    fieldTypeNumeric,
			numericValue: "0064",
			minValue:     1,
			maxValue:     9999,
			digits:       4,
		},
		{
			name:        "Benign",
			description: "Run inside a benign region",
			fieldType:   fieldTypeRadio,
			options: []option{
				{"no", "Failures count as test-relevant"},
				{"yes", "Failures are recorded as expected"},
			},
			selected: 0,
		},
	}

	return marchFormModel{
		params: marchParams{
			delay:  0,
			repeat: 1,
			allocs: 10,
			size:   64,
		},
		currentField: 0,
		fields:       fields,
	}
}

// Init initializes the model.
func (m marchFormModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model state.
func (m marchFormModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		currentField := &m.fields[m.currentField]

		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelled = true

			return m, tea.Quit
		case "enter":
			m.updateParamsFromSelection()
			if m.currentField >= len(m.fields)-1 {
				m.done = true

				return m, tea.Quit
			}
			m.currentField++
		case "tab":
			if m.currentField < len(m.fields)-1 {
				m.currentField++
			}
		case "shift+tab":
			if m.currentField > 0 {
				m.currentField--
			}
		case "up", "k":
			if currentField.fieldType == fieldTypeRadio {
				if currentField.selected > 0 {
					currentField.selected--
				}
			} else if currentField.fieldType == fieldTypeNumeric {
				m.incrementNumericValue(1)
			}
		case "down", "j":
			if currentField.fieldType == fieldTypeRadio {
				maxIdx := len(currentField.options) - 1
				if currentField.selected < maxIdx {
					currentField.selected++
				}
			} else if currentField.fieldType == fieldTypeNumeric {
				m.decrementNumericValue(1)
			}
		case "backspace":
			if currentField.fieldType == fieldTypeNumeric {
				m.handleBackspace()
			}
		default:
			// Handle numeric input for numeric fields.
			if currentField.fieldType == fieldTypeNumeric && len(msg.String()) == 1 {
				if char := msg.String()[0]; char >= '0' && char <= '9' {
					m.handleNumericInput(char)
				}
			}
		}
	}

	return m, nil
}

// incrementNumericValue increases the numeric value by the specified amount.
func (m *marchFormModel) incrementNumericValue(amount int) {
	currentField := &m.fields[m.currentField]
	if currentField.fieldType != fieldTypeNumeric {
		return
	}

	currentValue := m.parseNumericValue(currentField.numericValue)
	newValue := currentValue + amount
	if newValue <= currentField.maxValue {
		currentField.numericValue = m.formatNumericValue(newValue, currentField.digits)
	}
}

// decrementNumericValue decreases the numeric value by the specified amount.
func (m *marchFormModel) decrementNumericValue(amount int) {
	currentField := &m.fields[m.currentField]
	if currentField.fieldType != fieldTypeNumeric {
		return
	}

	currentValue := m.parseNumericValue(currentField.numericValue)
	newValue := currentValue - amount
	if newValue >= currentField.minValue {
		currentField.numericValue = m.formatNumericValue(newValue, currentField.digits)
	}
}

// handleNumericInput processes direct numeric character input.
func (m *marchFormModel) handleNumericInput(char byte) {
	currentField := &m.fields[m.currentField]
	if currentField.fieldType != fieldTypeNumeric {
		return
	}

	currentValue := strings.TrimLeft(currentField.numericValue, "0")
	if currentValue == "" {
		currentValue = "0"
	}

	newValueStr := currentValue + string(char)
	newValue := m.parseNumericValue(newValueStr)

	if newValue >= currentField.minValue && newValue <= currentField.maxValue {
		currentField.numericValue = m.formatNumericValue(newValue, currentField.digits)
	}
}

// handleBackspace removes the last digit from the numeric input.
func (m *marchFormModel) handleBackspace() {
	currentField := &m.fields[m.currentField]
	if currentField.fieldType != fieldTypeNumeric {
		return
	}

	if len(currentField.numericValue) > 0 {
		valueStr := strings.TrimLeft(currentField.numericValue, "0")
		if len(valueStr) <= 1 {
			currentField.numericValue = m.formatNumericValue(
				currentField.minValue,
				currentField.digits,
			)
		} else {
			valueStr = valueStr[:len(valueStr)-1]
			newValue := m.parseNumericValue(valueStr)
			currentField.numericValue = m.formatNumericValue(newValue, currentField.digits)
		}
	}
}

// parseNumericValue converts a string to an integer.
func (m *marchFormModel) parseNumericValue(value string) int {
	if value == "" {
		return 0
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}

	return parsed
}

// formatNumericValue formats an integer with leading zeros.
func (m *marchFormModel) formatNumericValue(value, digits int) string {
	return fmt.Sprintf("%0*d", digits, value)
}

// updateParamsFromSelection updates the march parameters with currently
// selected values.
func (m *marchFormModel) updateParamsFromSelection() {
	for _, field := range m.fields {
		switch field.name {
		case "Delay":
			m.params.delay = m.parseNumericValue(field.numericValue)
		case "Repeat":
			m.params.repeat = m.parseNumericValue(field.numericValue)
		case "Allocs":
			m.params.allocs = m.parseNumericValue(field.numericValue)
		case "Size":
			m.params.size = m.parseNumericValue(field.numericValue)
		case "Benign":
			m.params.benign = field.options[field.selected].value == "yes"
		}
	}
}

// View renders the current state of the model.
func (m marchFormModel) View() string {
	if m.done {
		return "March configured, running...\n"
	}

	if m.cancelled {
		return "Operation cancelled.\n"
	}

	s := "Configure Allocation March\n"
	s += strings.Repeat("=", 50) + "\n\n"

	s += fmt.Sprintf("Field %d of %d\n\n", m.currentField+1, len(m.fields))

	currentField := m.fields[m.currentField]
	s += fmt.Sprintf("▶ %s: %s\n\n", currentField.name, currentField.description)

	if currentField.fieldType == fieldTypeRadio {
		for j, option := range currentField.options {
			selector := "  ○ "
			if j == currentField.selected {
				selector = "  ● "
			}
			s += fmt.Sprintf("%s%s - %s\n", selector, option.value, option.description)
		}
	} else if currentField.fieldType == fieldTypeNumeric {
		s += fmt.Sprintf("  [ %s ] (Range: %02d-%02d)\n",
			currentField.numericValue, currentField.minValue, currentField.maxValue)
		s += "  Type digits, use ↑/↓ to increment/decrement, Backspace to delete\n"
	}

	s += "\n"

	if m.currentField > 0 {
		s += "Completed fields:\n"
		for i := 0; i < m.currentField; i++ {
			field := m.fields[i]
			if field.fieldType == fieldTypeRadio {
				s += fmt.Sprintf("  %s: %s\n", field.name, field.options[field.selected].value)
			} else if field.fieldType == fieldTypeNumeric {
				s += fmt.Sprintf("  %s: %s\n", field.name, field.numericValue)
			}
		}
		s += "\n"
	}

	s += "Navigation:\n"
	s += "  ↑/↓ or j/k: Select option or increment/decrement value\n"
	s += "  Tab/Shift+Tab: Next/Previous field\n"
	s += "  Enter: Confirm and continue\n"
	if currentField.fieldType == fieldTypeNumeric {
		s += "  0-9: Direct numeric input\n"
		s += "  Backspace: Delete digit\n"
	}
	s += "  q or Ctrl+C: Quit\n"

	return s
}

// runMarchForm starts the interactive TUI for march configuration.
func runMarchForm() (marchParams, bool, error) {
	model := newMarchFormModel()

	p := tea.NewProgram(model)
	finalModel, err := p.Run()
	if err != nil {
		return marchParams{}, false, err
	}

	m := finalModel.(marchFormModel)
	m.updateParamsFromSelection() // Ensure final state is captured.

	return m.params, !m.cancelled, nil
}

func newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Configure and run an allocation march interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, confirmed, err := runMarchForm()
			if err != nil {
				return fmt.Errorf("console failed: %w", err)
			}
			if !confirmed {
				return nil
			}

			report, err := runMarch(params)
			if err != nil {
				return fmt.Errorf("failed to run march: %w", err)
			}

			cmd.Print(formatReport(params, report))

			return nil
		},
	}
}
