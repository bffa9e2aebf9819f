package framework

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/onsi/ginkgo/v2"
	"k8s.io/kubernetes/test/e2e/framework"
)

var areaRE = regexp.MustCompile(`^[a-z]+(-[a-z]+)*$`)

// SubmarinerDescribe returns a wrapper function for ginkgo.Describe which
// injects the area name as label. The parameter should be lowercase with no
// spaces and no area- prefix.
func SubmarinerDescribe(area string) func(...interface{}) bool {
	if !areaRE.MatchString(area) || strings.HasPrefix(area, "area-") {
		framework.RecordBug(framework.NewBug(fmt.Sprintf("area label must be lowercase, no spaces and no area- prefix, got instead: %q", area), 1))
	}
	return func(args ...interface{}) bool {
		args = append([]interface{}{framework.WithLabel("Submariner"), framework.WithLabel("area-" + area)}, args...)
		return framework.Describe(args...)
	}
}

// SubmarinerIt is a wrapper function for ginkgo It. Adds the "[Submariner]" tag and makes static analysis easier.
func SubmarinerIt(args ...interface{}) bool {
	args = append(args, ginkgo.Offset(1), framework.WithLabel("Submariner"))
	return framework.It(args...)
}

// SubmarinerSlowIt marks specs that wait minutes for the add-on to converge.
func SubmarinerSlowIt(args ...interface{}) bool {
	args = append(args, ginkgo.Offset(1), framework.WithLabel("Submariner"), framework.WithSlow())
	return framework.It(args...)
}
