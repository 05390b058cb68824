// Package message defines the structured messages exchanged between the client and the
// remote object server.
//
// A Message is a flat mapping from string keys to JSON-compatible values. Requests carry a
// "command" key; replies carry a "type" key that tells the value codec how to read "value".
// The codec layer serializes a Message and the protocol layer frames it for transmission.
package message

import "fmt"

// Message is one discrete unit sent or received on a channel.
type Message map[string]any

// Request commands.
const (
	CmdConnect         = "connect"
	CmdGetConstructors = "get-constructors"
	CmdConstructor     = "constructor"
	CmdGetField        = "get-field"
	CmdSetField        = "set-field"
	CmdRunMethod       = "run-method"
	CmdDestructor      = "destructor"
)

// Message keys.
const (
	KeyCommand       = "command"
	KeyClasspath     = "classpath"
	KeyArgumentTypes = "argument-types"
	KeyArguments     = "arguments"
	KeyNewPort       = "new-port"
	KeyPort          = "port"
	KeyHashCode      = "hash-code"
	KeyName          = "name"
	KeyValue         = "value"
	KeyMessage       = "message"
	KeyType          = "type"
	KeyVersion       = "version"
	KeyAPI           = "api"
	KeyClass         = "class"
	KeyFields        = "fields"
	KeyInterfaces    = "interfaces"
)

// Reply envelope types.
const (
	TypeException          = "exception"
	TypeNull               = "null"
	TypePrimitive          = "primitive"
	TypeString             = "string"
	TypeList               = "list"
	TypeObject             = "object"
	TypeUnserializedObject = "unserialized-object"
	TypeByteArray          = "byte-array"
	TypeDoubleArray        = "double-array"
	TypeIntArray           = "int-array"
	TypeShortArray         = "short-array"
	TypeFloatArray         = "float-array"
)

// Command returns the request command, or "" for replies.
func (m Message) Command() string {
	s, _ := m[KeyCommand].(string)
	return s
}

// Type returns the reply envelope type, or "" when absent.
func (m Message) Type() string {
	s, _ := m[KeyType].(string)
	return s
}

// String returns the string stored under key, or "" if it is missing or not a string.
func (m Message) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// RemoteFault is an error raised on the server side and reported through an exception
// envelope. The message is the server's text, unmodified.
type RemoteFault struct {
	Message string
}

func (e *RemoteFault) Error() string {
	return "remote fault: " + e.Message
}

// CheckException returns a *RemoteFault when m is an exception envelope and nil otherwise.
// The server reports the text under "value"; the connect reply uses "message".
func CheckException(m Message) error {
	if m.Type() != TypeException {
		return nil
	}
	for _, key := range []string{KeyValue, KeyMessage} {
		if v, ok := m[key]; ok && v != nil {
			if s, ok := v.(string); ok {
				return &RemoteFault{Message: s}
			}
			return &RemoteFault{Message: fmt.Sprint(v)}
		}
	}
	return &RemoteFault{Message: "unspecified exception"}
}

// Exception builds an exception envelope carrying text under both keys clients read.
func Exception(text string) Message {
	return Message{KeyType: TypeException, KeyValue: text, KeyMessage: text}
}

// Connect builds the handshake request.
func Connect() Message {
	return Message{KeyCommand: CmdConnect}
}

// GetConstructors asks for the constructor overload set of classpath.
func GetConstructors(classpath string) Message {
	return Message{KeyCommand: CmdGetConstructors, KeyClasspath: classpath}
}

// Constructor asks the server to instantiate classpath. When newPort is set the server
// serves the new object on a dedicated port and reports it under "port".
func Constructor(classpath string, argTypes []string, args []any, newPort bool) Message {
	m := Message{
		KeyCommand:       CmdConstructor,
		KeyClasspath:     classpath,
		KeyArgumentTypes: argTypes,
		KeyArguments:     args,
	}
	if newPort {
		m[KeyNewPort] = true
	}
	return m
}

// GetField reads a field of the object identified by id.
func GetField(id any, name string) Message {
	return Message{KeyCommand: CmdGetField, KeyHashCode: id, KeyName: name}
}

// SetField writes an already encoded value into a field.
func SetField(id any, name string, encoded any) Message {
	return Message{KeyCommand: CmdSetField, KeyHashCode: id, KeyName: name, KeyValue: encoded}
}

// RunMethod invokes the overload of name matching argTypes.
func RunMethod(id any, name string, argTypes []string, args []any) Message {
	return Message{
		KeyCommand:       CmdRunMethod,
		KeyHashCode:      id,
		KeyName:          name,
		KeyArgumentTypes: argTypes,
		KeyArguments:     args,
	}
}

// Destructor tells the server the client discarded its proxy for id.
func Destructor(id any) Message {
	return Message{KeyCommand: CmdDestructor, KeyHashCode: id}
}
