// email_handler.go
package email

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ====================== 邮件处理器实现 ======================

// XLSXAttachmentHandler 把目标邮件里的xlsx附件落到数据目录
// 航班表和天气表各是一个附件，落盘后由管线按文件名取用
type XLSXAttachmentHandler struct {
	TargetSubject string          // 目标邮件主题关键词
	DataDir       string          // 附件保存目录
	processedUIDs map[uint32]bool // 已处理邮件UID记录
	mu            sync.RWMutex    // 保护processedUIDs的读写锁
}

func NewXLSXAttachmentHandler(subject, dataDir string) *XLSXAttachmentHandler {
	return &XLSXAttachmentHandler{
		TargetSubject: subject,
		DataDir:       dataDir,
		processedUIDs: make(map[uint32]bool), // 初始化映射
	}
}

// isProcessed 检查邮件是否已处理过（线程安全）
func (h *XLSXAttachmentHandler) isProcessed(uid uint32) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.processedUIDs[uid]
}

// markAsProcessed 标记邮件为已处理（线程安全）
func (h *XLSXAttachmentHandler) markAsProcessed(uid uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processedUIDs[uid] = true
}

// Handle 处理单个邮件，返回落盘的附件路径
func (h *XLSXAttachmentHandler) Handle(email *Email) ([]string, error) {
	// 检查是否已处理过该邮件
	if h.isProcessed(email.UID) {
		return nil, nil
	}

	// 检查邮件主题是否包含目标关键词
	if !strings.Contains(email.Subject, h.TargetSubject) {
		return nil, nil
	}

	// 确保保存目录存在
	if err := os.MkdirAll(h.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建目录失败: %v", err)
	}

	// 处理附件
	var saved []string
	for _, attachment := range email.Attachments {
		// 只处理XLSX文件
		if filepath.Ext(attachment.Filename) != ".xlsx" {
			continue
		}

		// 构建完整文件路径
		filePath := filepath.Join(h.DataDir, filepath.Base(attachment.Filename))

		// 保存文件
		if err := os.WriteFile(filePath, attachment.Content, 0644); err != nil {
			return saved, fmt.Errorf("保存附件失败: %v", err)
		}
		saved = append(saved, filePath)
	}

	// 有XLSX附件落盘才算处理完成
	if len(saved) > 0 {
		h.markAsProcessed(email.UID)
	}

	return saved, nil
}
