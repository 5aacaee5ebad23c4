package rpc

// Relational write commands: the ERP's tagged-triple encoding for mutating
// to-many relations in a single write. Each command is `(tag, id, payload)`
// and the sequence round-trips verbatim through the engine.

// CommandTag identifies a relational write command.
type CommandTag int

const (
	// CommandCreate creates a new linked record from the payload values.
	CommandCreate CommandTag = 0

	// CommandUpdate updates the linked record with the payload values.
	CommandUpdate CommandTag = 1

	// CommandDelete deletes the linked record from the database.
	CommandDelete CommandTag = 2

	// CommandUnlink removes the link without deleting the record.
	CommandUnlink CommandTag = 3

	// CommandLink links an existing record.
	CommandLink CommandTag = 4

	// CommandReplaceAll replaces all links with the payload id list.
	CommandReplaceAll CommandTag = 6
)

// Command is one element of a relational command sequence.
type Command struct {
	Tag     CommandTag
	ID      int64
	Payload interface{}
}

// Triple renders the command in the server's wire form.
func (c Command) Triple() []interface{} {
	payload := c.Payload
	if payload == nil {
		payload = 0
	}
	return []interface{}{int(c.Tag), c.ID, payload}
}

// CreateAndLink builds a command that creates and links a new record.
func CreateAndLink(values ValueMap) Command {
	return Command{Tag: CommandCreate, Payload: values}
}

// UpdateLinked builds a command that updates an already-linked record.
func UpdateLinked(id int64, values ValueMap) Command {
	return Command{Tag: CommandUpdate, ID: id, Payload: values}
}

// DeleteLinked builds a command that deletes a linked record.
func DeleteLinked(id int64) Command {
	return Command{Tag: CommandDelete, ID: id}
}

// Unlink builds a command that removes a link without deleting.
func UnlinkCommand(id int64) Command {
	return Command{Tag: CommandUnlink, ID: id}
}

// Link builds a command that links an existing record.
func Link(id int64) Command {
	return Command{Tag: CommandLink, ID: id}
}

// ReplaceAll builds a command that replaces every link with ids.
func ReplaceAll(ids []int64) Command {
	payload := make([]interface{}, len(ids))
	for i, id := range ids {
		payload[i] = id
	}
	return Command{Tag: CommandReplaceAll, Payload: payload}
}

// CommandSequence renders an ordered command list in wire form.
func CommandSequence(cmds ...Command) []interface{} {
	out := make([]interface{}, len(cmds))
	for i, c := range cmds {
		out[i] = c.Triple()
	}
	return out
}

// ParseCommand interprets a wire-form triple as a Command. It returns false
// for values that are not command triples (plain id lists, for instance).
func ParseCommand(v interface{}) (Command, bool) {
	triple, ok := v.([]interface{})
	if !ok || len(triple) != 3 {
		return Command{}, false
	}
	tag, ok := AsInt(triple[0])
	if !ok {
		return Command{}, false
	}
	switch CommandTag(tag) {
	case CommandCreate, CommandUpdate, CommandDelete, CommandUnlink, CommandLink, CommandReplaceAll:
	default:
		return Command{}, false
	}
	id, _ := AsInt(triple[1])
	return Command{Tag: CommandTag(tag), ID: id, Payload: triple[2]}, true
}
