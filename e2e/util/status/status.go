// Package status reads the Submariner status labels shown per cluster on a
// cluster set's add-on tab and waits for them to converge.
package status

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	addonclientset "open-cluster-management.io/api/client/addon/clientset/versioned"
	clusterclientset "open-cluster-management.io/api/client/cluster/clientset/versioned"

	"github.com/stolostron/submariner-addon-e2e/e2e/util/addon"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/clusterset"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/membership"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/poll"
	"github.com/stolostron/submariner-addon-e2e/e2e/util/resource"
)

// Progressing is shown while the add-on has not reported a condition yet.
const Progressing = "Progressing"

// Label is one status column of the add-on table.
type Label struct {
	Name      string
	Condition string
	// When is the condition status that shows Good; any other shows Bad.
	When metav1.ConditionStatus
	Good string
	Bad  string
}

var (
	ConnectionStatus = Label{
		Name:      "Connection status",
		Condition: "SubmarinerConnectionDegraded",
		When:      metav1.ConditionFalse,
		Good:      "Healthy",
		Bad:       "Degraded",
	}
	AgentStatus = Label{
		Name:      "Agent status",
		Condition: "SubmarinerAgentDegraded",
		When:      metav1.ConditionFalse,
		Good:      "Healthy",
		Bad:       "Degraded",
	}
	GatewayNodesLabeled = Label{
		Name:      "Gateway nodes labeled",
		Condition: "SubmarinerGatewaysLabeled",
		When:      metav1.ConditionTrue,
		Good:      "Nodes labeled",
		Bad:       "Nodes not labeled",
	}
)

// Labels are the columns in the order the table shows them.
var Labels = []Label{ConnectionStatus, AgentStatus, GatewayNodesLabeled}

func (l Label) String() string { return l.Name }

// Render derives the cell text and detail of the label from add-on conditions.
func (l Label) Render(conditions []metav1.Condition) (text, detail string) {
	cond := meta.FindStatusCondition(conditions, l.Condition)
	if cond == nil {
		return Progressing, ""
	}
	if cond.Status == l.When {
		return l.Good, cond.Message
	}
	return l.Bad, cond.Message
}

// Cell is the value of one label for one cluster. Detail is the text of the
// popover opened from the cell.
type Cell struct {
	Cluster string
	Text    string
	Detail  string
}

func (c Cell) String() string {
	return fmt.Sprintf("%s=%q (%s)", c.Cluster, c.Text, c.Detail)
}

// Source returns the cells of a label for every cluster of a set that has
// the add-on.
type Source interface {
	Rows(ctx context.Context, set string, label Label) ([]Cell, error)
}

// AddOnSource reads cells from the ManagedClusterAddOn of each member.
type AddOnSource struct {
	clusters clusterclientset.Interface
	addons   addonclientset.Interface
}

var _ Source = &AddOnSource{}

func NewAddOnSource(clusters clusterclientset.Interface, addons addonclientset.Interface) *AddOnSource {
	return &AddOnSource{clusters: clusters, addons: addons}
}

func (s *AddOnSource) Rows(ctx context.Context, set string, label Label) ([]Cell, error) {
	members, err := clusterset.MembersOf(ctx, s.clusters, set)
	if err != nil {
		return nil, err
	}
	members.Delete(membership.Sentinel)

	var cells []Cell
	for _, cluster := range sets.List(members) {
		existence, addOn, err := resource.Lookup(ctx, "managedclusteraddon "+cluster, s.addons.AddonV1alpha1().ManagedClusterAddOns(cluster).Get, addon.Name)
		if err != nil {
			return nil, err
		}
		if existence != resource.Exists {
			continue
		}
		text, detail := label.Render(addOn.Status.Conditions)
		cells = append(cells, Cell{Cluster: cluster, Text: text, Detail: detail})
	}
	return cells, nil
}

// Expectation is the state every row of a label must reach.
type Expectation struct {
	Label          Label
	Text           string
	DetailContains string
}

func (e Expectation) String() string {
	if e.DetailContains == "" {
		return fmt.Sprintf("%s is %q", e.Label, e.Text)
	}
	return fmt.Sprintf("%s is %q with detail containing %q", e.Label, e.Text, e.DetailContains)
}

// Check reports whether there is at least one row and every row matches.
func (e Expectation) Check(rows []Cell) bool {
	if len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		if row.Text != e.Text || !strings.Contains(row.Detail, e.DetailContains) {
			return false
		}
	}
	return true
}

// WaitFor polls the rows of the expectation's label in set until it holds.
// On timeout the error names the label and carries the last rows seen.
func WaitFor(ctx context.Context, source Source, set string, expectation Expectation, opts ...poll.Option) ([]Cell, error) {
	opts = append([]poll.Option{poll.WithDescription("%s in cluster set %s", expectation, set)}, opts...)
	out, err := poll.Until(ctx, func(ctx context.Context) ([]Cell, bool, error) {
		rows, err := source.Rows(ctx, set, expectation.Label)
		if err != nil {
			return nil, false, err
		}
		return rows, expectation.Check(rows), nil
	}, opts...)
	if err != nil {
		return out.Value, err
	}
	return out.Value, out.Err()
}

// WaitForNoRows polls until no cluster of set shows the add-on any more.
func WaitForNoRows(ctx context.Context, source Source, set string, opts ...poll.Option) error {
	opts = append([]poll.Option{poll.WithDescription("no submariner add-on row in cluster set %s", set)}, opts...)
	out, err := poll.Until(ctx, func(ctx context.Context) ([]Cell, bool, error) {
		rows, err := source.Rows(ctx, set, ConnectionStatus)
		return rows, err == nil && len(rows) == 0, err
	}, opts...)
	if err != nil {
		return err
	}
	return out.Err()
}
