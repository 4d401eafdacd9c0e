package handlers

import (
	"time"

	"github.com/Necroforger/dgrouter/exrouter"
	"github.com/bwmarrin/discordgo"
)

// replyDel - Reply and delete the reply after timer seconds
func replyDel(ctx *exrouter.Context, msg string, timer time.Duration) error {
	newMsg, err := ctx.Reply(msg)
	if err != nil {
		return err
	}
	time.AfterFunc(time.Second*timer, func() {
		ctx.Ses.ChannelMessageDelete(ctx.Msg.ChannelID, newMsg.ID)
	})
	return nil
}

// canManage - Check that the command author may manage the server
func canManage(ctx *exrouter.Context) bool {
	perms, err := ctx.Ses.UserChannelPermissions(ctx.Msg.Author.ID, ctx.Msg.ChannelID)
	if err != nil {
		return false
	}
	return hasManage(perms)
}

func hasManage(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 ||
		perms&discordgo.PermissionManageServer != 0
}

// emojiNames - Bare name and API name of a reacted emoji
func emojiNames(e discordgo.Emoji) (name, apiName string) {
	return e.Name, e.APIName()
}
