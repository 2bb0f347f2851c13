package incident

import "fmt"

// Category is the fixed classification assigned to a processed incident.
type Category string

const (
	CategoryNetwork  Category = "Network Issue"
	CategorySoftware Category = "Software Installation"
	CategoryPassword Category = "Password Reset"
	CategoryQueue    Category = "Queue Management"
	CategoryOther    Category = "Other"
)

// Categories lists every category in classification order.
var Categories = []Category{CategoryNetwork, CategorySoftware, CategoryPassword, CategoryQueue, CategoryOther}

// RawIncident holds the ticket fields as returned by the ticketing system.
type RawIncident struct {
	ID        int
	Name      string
	Content   string
	Status    string
	Priority  string
	Urgency   string
	Impact    string
	Date      string
	SolveDate string
	Recipient string
}

// RawDocument is the most recent attachment of a ticket. Bytes is empty when
// the ticket has none or the download failed.
type RawDocument struct {
	ID       int
	Filename string
	Bytes    []byte
}

func (d RawDocument) Empty() bool {
	return len(d.Bytes) == 0
}

// RawSolution is the latest solution text of a ticket, empty when absent.
type RawSolution struct {
	ID      int
	Content string
}

type RawTask struct {
	ID      int
	Content string
	State   string
	UserID  string
}

type RawTaskList []RawTask

// Task is a cleaned task entry.
type Task struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	State   string `json:"state"`
	Owner   string `json:"users_id"`
}

// ProcessedIncident is the normalized record handed to report generation.
type ProcessedIncident struct {
	IncidentID   int
	Title        string
	Content      string
	Status       string
	Priority     string
	Urgency      string
	Impact       string
	Date         string
	SolveDate    string
	Recipient    string
	Solution     string
	Tasks        []Task
	Category     Category
	DocumentText string
}

// GeneratedReport is a rendered PDF.
type GeneratedReport struct {
	Bytes []byte
	Title string
}

// IndexEntry is one stored report version as written to the search index.
type IndexEntry struct {
	ID             string   `json:"id"`
	IncidentID     int      `json:"incident_id"`
	Category       Category `json:"incident_type"`
	ContentAddress string   `json:"version"`
	ObjectKey      string   `json:"object_name"`
	ReportText     string   `json:"content"`
	SolutionText   string   `json:"solution"`
	Tasks          []Task   `json:"tasks"`
	Date           string   `json:"date"`
	Title          string   `json:"name"`
}

// EntryID returns the composite index id of a stored report version.
func EntryID(incidentID int, contentAddress string) string {
	return fmt.Sprintf("%d-%s", incidentID, contentAddress)
}
