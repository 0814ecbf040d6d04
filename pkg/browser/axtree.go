package browser

import (
	"encoding/json"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/go-rod/rod/lib/proto"
)

// axNode is the part of an Accessibility.queryAXTree result that role
// queries need. Names and roles are computed by the browser.
type axNode struct {
	BackendID int64
	Role      string
	Name      string
	Ignored   bool
}

func fromRodAXNode(n *proto.AccessibilityAXNode) axNode {
	return axNode{
		BackendID: int64(n.BackendDOMNodeID),
		Role:      rodAXString(n.Role),
		Name:      rodAXString(n.Name),
		Ignored:   n.Ignored,
	}
}

func rodAXString(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	s, _ := v.Value.Val().(string)
	return s
}

func fromCDPAXNode(n *accessibility.Node) axNode {
	return axNode{
		BackendID: int64(n.BackendDOMNodeID),
		Role:      cdpAXString(n.Role),
		Name:      cdpAXString(n.Name),
		Ignored:   n.Ignored,
	}
}

func cdpAXString(v *accessibility.Value) string {
	if v == nil || len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(v.Value), &s); err != nil {
		return ""
	}
	return s
}

// matchRole keeps the DOM-backed nodes that are exposed to assistive
// technology and match q, in document order.
func matchRole(nodes []axNode, q Query) []int64 {
	var ids []int64
	for _, n := range nodes {
		if n.Ignored || n.BackendID == 0 || n.Role != q.Role {
			continue
		}
		if q.Name != "" && !nameMatches(n.Name, q.Name, q.Exact) {
			continue
		}
		ids = append(ids, n.BackendID)
	}
	return ids
}

// nameMatches compares accessible names the way Playwright does: whitespace
// is collapsed, then either an exact match or a case-insensitive substring.
func nameMatches(got, want string, exact bool) bool {
	got = strings.Join(strings.Fields(got), " ")
	if exact {
		return got == want
	}
	return strings.Contains(strings.ToLower(got), strings.ToLower(strings.Join(strings.Fields(want), " ")))
}
