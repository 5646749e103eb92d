package bot

import (
	tele "gopkg.in/telebot.v4"

	"outagebot/pkg/tgui"
)

const (
	welcomeText = "Привет! Это игра-миниприложение. Здесь ты можешь узнать лор, правила и выполнять игровые задания."

	legalText = "Юридическая информация:\n" +
		"Продолжая использование игры, вы подтверждаете, что ознакомились с правилами проекта " +
		"и принимаете условия участия. Нажмите кнопку ниже, чтобы подтвердить согласие."

	legalAcceptedToast = "Спасибо! Доступ открыт."
	legalRequiredAlert = "Чтобы открыть игру, нужно ознакомиться с правилами."

	rulesText = "Правила игры:\n" +
		"1. Выполняй задания, чтобы продвигаться по сюжету.\n" +
		"2. Собирай награды и открывай новые главы.\n" +
		"3. Следи за подсказками и не пропускай уведомления."

	loreText = "Лор мира:\n" +
		"Давным-давно мир был расколот на две фракции. Герои ищут древние артефакты, чтобы восстановить баланс.\n" +
		"Твои решения будут определять судьбу королевств."

	playText = "Здесь будет игровой процесс. Подписка на каналы проверяется через мини-приложение."

	notifyOnToast  = "Уведомления включены."
	notifyOffToast = "Уведомления выключены."
)

// Callback data values routed in router.go.
const (
	cbLegalAccept  = "legal_accept"
	cbGamePlay     = "game_play"
	cbGameRules    = "game_rules"
	cbGameLore     = "game_lore"
	cbNotifyToggle = "notify_toggle"
)

var menuContent = map[string]string{
	cbGamePlay:  playText,
	cbGameRules: rulesText,
	cbGameLore:  loreText,
}

func mainMenuKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("🎮 Играть", cbGamePlay)).
		Row(tgui.Btn("📜 Правила", cbGameRules)).
		Row(tgui.Btn("📖 Лор", cbGameLore)).
		Markup()
}

func legalAcceptKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("✅ Принимаю условия", cbLegalAccept)).
		Markup()
}

// NotificationKeyboard is attached to every outage reminder: a toggle
// for further notifications, plus an entry link when the outage has
// started and a game URL is configured.
func NotificationKeyboard(notifyOn, showEnter bool, enterURL string) *tele.ReplyMarkup {
	toggle := "🔕 Отключить уведомления"
	if !notifyOn {
		toggle = "🔔 Включить уведомления"
	}
	kb := tgui.NewInline().Row(tgui.Btn(toggle, cbNotifyToggle))
	if showEnter && enterURL != "" {
		kb.Row(tgui.URLBtn("🎮 Войти в игру", enterURL))
	}
	return kb.Markup()
}
