package glpi

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexString decodes GLPI fields that arrive as a string, a number or null
// depending on expand_dropdowns and the item type.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if bytes.Equal(data, []byte("true")) || bytes.Equal(data, []byte("false")) {
		*f = flexString(data)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt decodes ids that some GLPI versions return as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	if s == "" || s == "false" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

type ticketResponse struct {
	ID               flexInt    `json:"id"`
	Name             flexString `json:"name"`
	Content          flexString `json:"content"`
	Status           flexString `json:"status"`
	Priority         flexString `json:"priority"`
	Urgency          flexString `json:"urgency"`
	Impact           flexString `json:"impact"`
	Date             flexString `json:"date"`
	SolveDate        flexString `json:"solvedate"`
	UsersIDRecipient flexString `json:"users_id_recipient"`
}

type documentResponse struct {
	ID       flexInt    `json:"id"`
	Filename flexString `json:"filename"`
	Filepath flexString `json:"filepath"`
}

type documentItemResponse struct {
	ID          flexInt `json:"id"`
	DocumentsID flexInt `json:"documents_id"`
}

type solutionResponse struct {
	ID      flexInt    `json:"id"`
	Content flexString `json:"content"`
}

type taskResponse struct {
	ID      flexInt    `json:"id"`
	Content flexString `json:"content"`
	State   flexString `json:"state"`
	UsersID flexString `json:"users_id"`
}

type createResponse struct {
	ID      flexInt    `json:"id"`
	Message flexString `json:"message"`
}
