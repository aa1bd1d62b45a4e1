package llm

import (
	"encoding/base64"
	"strings"

	"github.com/cloudwego/eino/schema"

	workflowport "prompt-blueprint-api/internal/workflow/port"
)

// splitMessages 合并系统消息与用户消息文本
func splitMessages(msgs []*schema.Message) (system, user string) {
	var sys, usr []string
	for _, m := range msgs {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == schema.System {
			sys = append(sys, m.Content)
			continue
		}
		usr = append(usr, m.Content)
	}
	return strings.Join(sys, "\n\n"), strings.Join(usr, "\n\n")
}

func dataURI(a *workflowport.Attachment) string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

func hasAttachment(a *workflowport.Attachment) bool {
	return a != nil && len(a.Data) > 0
}
