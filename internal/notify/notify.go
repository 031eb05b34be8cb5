// Package notify содержит исходящие уведомления пользователям.
package notify

import "go.uber.org/zap"

// Notifier отправляет пользователю текстовое уведомление.
// Доставка best-effort: сбой доставки не влияет на операции с балансом
// и заказами, поэтому ошибка наружу не поднимается.
type Notifier interface {
	Notify(userID int64, text string)
}

// LogNotifier пишет уведомления в лог. Используется как реализация по
// умолчанию, пока не подключён внешний канал доставки.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт нотификатор поверх указанного логгера.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify пишет уведомление в лог.
func (n *LogNotifier) Notify(userID int64, text string) {
	n.logger.Info("user notification",
		zap.Int64("user", userID),
		zap.String("text", text),
	)
}
