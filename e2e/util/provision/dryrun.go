package provision

import (
	"context"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DeleteFunc is the signature of a typed or dynamic client Delete.
type DeleteFunc func(ctx context.Context, name string, opts metav1.DeleteOptions) error

// PrepareDryRun validates a deletion with a server-side dry run. The returned
// request deletes for real on Confirm and does nothing on Cancel.
func PrepareDryRun(ctx context.Context, del DeleteFunc, name string) (DeleteRequest, error) {
	if err := del(ctx, name, metav1.DeleteOptions{DryRun: []string{metav1.DryRunAll}}); err != nil {
		return nil, err
	}
	return &dryRunDelete{del: del, name: name}, nil
}

type dryRunDelete struct {
	del  DeleteFunc
	name string
}

func (d *dryRunDelete) Confirm(ctx context.Context) error {
	policy := metav1.DeletePropagationBackground
	err := d.del(ctx, d.name, metav1.DeleteOptions{PropagationPolicy: &policy})
	if apierrors.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *dryRunDelete) Cancel(context.Context) error {
	return nil
}
