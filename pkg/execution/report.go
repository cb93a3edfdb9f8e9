// Package execution models what the kernel reports after running a cell.
package execution

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"

	"github.com/ritzau/dfgraph/pkg/cellid"
	"github.com/ritzau/dfgraph/pkg/dfgraph"
)

// ErrInvalidReport is returned when a report cannot be decoded or fails validation
var ErrInvalidReport = errors.New("invalid execution report")

// Status is the outcome the kernel reported
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

var reportValidate *validator.Validate

func init() {
	reportValidate = validator.New()
	_ = reportValidate.RegisterValidation("cellref", validateCellRef)
}

// validateCellRef accepts any raw id whose canonical form is a valid cell id
func validateCellRef(fl validator.FieldLevel) bool {
	return cellid.Valid(cellid.Truncate(fl.Field().String()).String())
}

// DownstreamUpdate is one entry of the kernel's update_downstreams list
type DownstreamUpdate struct {
	Key  string   `json:"key" validate:"required,cellref"`
	Data []string `json:"data" validate:"dive,cellref"`
}

// Report is the reply the kernel sends for one cell execution. Raw ids may be
// dashed UUIDs or longer kernel keys; they are reduced to canonical form on
// conversion.
type Report struct {
	Session           string              `json:"session" validate:"required"`
	CellID            string              `json:"cell_id" validate:"required,cellref"`
	Status            Status              `json:"status" validate:"omitempty,oneof=ok error"`
	Cells             []string            `json:"cells" validate:"dive,cellref"`
	Nodes             []string            `json:"nodes" validate:"unique"`
	Links             map[string][]string `json:"links" validate:"dive,keys,cellref,endkeys"`
	UpstreamDeps      []string            `json:"upstream_deps" validate:"dive,cellref"`
	DownstreamDeps    []string            `json:"downstream_deps" validate:"dive,cellref"`
	ImmUpstreamDeps   []string            `json:"imm_upstream_deps" validate:"dive,cellref"`
	ImmDownstreamDeps []string            `json:"imm_downstream_deps" validate:"dive,cellref"`
	UpdateDownstreams []DownstreamUpdate  `json:"update_downstreams" validate:"dive"`
	InternalNodes     []string            `json:"internal_nodes"`
	DeletedCells      []string            `json:"deleted_cells" validate:"dive,cellref"`
	Source            string              `json:"source,omitempty"`

	// Populated when Status is error
	ErrorName  string `json:"ename,omitempty"`
	ErrorValue string `json:"evalue,omitempty"`
}

// Decode reads and validates one JSON report
func Decode(r io.Reader) (*Report, error) {
	var rep Report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Validate checks ids and required fields
func (r *Report) Validate() error {
	if err := reportValidate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return nil
}

// Succeeded reports whether the execution completed. A missing status counts as ok.
func (r *Report) Succeeded() bool {
	return r.Status != StatusError
}

// Cell returns the canonical id of the executed cell
func (r *Report) Cell() cellid.ID {
	return cellid.Truncate(r.CellID)
}

// Failure classifies an unsuccessful execution, or returns nil
func (r *Report) Failure() *Failure {
	if r.Succeeded() {
		return nil
	}
	return &Failure{
		Kind:    Classify(r.ErrorName),
		Cell:    r.Cell(),
		Name:    r.ErrorName,
		Message: r.ErrorValue,
	}
}

// Update converts a successful report into a graph update
func (r *Report) Update() dfgraph.Update {
	u := dfgraph.Update{
		Cells:         truncateAll(r.Cells),
		CellID:        r.Cell(),
		Nodes:         append([]string{}, r.Nodes...),
		Uplinks:       make(map[cellid.ID][]string, len(r.Links)),
		Downlinks:     truncateAll(r.ImmDownstreamDeps),
		AllUpstreams:  truncateAll(r.UpstreamDeps),
		InternalNodes: append([]string{}, r.InternalNodes...),
	}
	for up, names := range r.Links {
		id := cellid.Truncate(up)
		u.Uplinks[id] = append(u.Uplinks[id], names...)
	}
	return u
}

// DownlinkUpdates converts update_downstreams into graph downlink updates
func (r *Report) DownlinkUpdates() []dfgraph.DownUpdate {
	return DownUpdates(r.UpdateDownstreams)
}

// DownUpdates converts a standalone downlink batch
func DownUpdates(list []DownstreamUpdate) []dfgraph.DownUpdate {
	downs := make([]dfgraph.DownUpdate, 0, len(list))
	for _, d := range list {
		downs = append(downs, dfgraph.DownUpdate{Key: d.Key, Data: truncateAll(d.Data)})
	}
	return downs
}

// ValidateDownstreams checks a standalone downlink batch
func ValidateDownstreams(list []DownstreamUpdate) error {
	batch := struct {
		Updates []DownstreamUpdate `validate:"dive"`
	}{list}
	if err := reportValidate.Struct(batch); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return nil
}

// Deleted returns the canonical ids of cells the kernel dropped since the last reply
func (r *Report) Deleted() []cellid.ID {
	return truncateAll(r.DeletedCells)
}

func truncateAll(raw []string) []cellid.ID {
	ids := make([]cellid.ID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, cellid.Truncate(s))
	}
	return ids
}
