// README: Profile handlers for the caller's own name, phone, role and device token.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/modules/profile"
)

type ProfileHandler struct {
	profiles *profile.Directory
}

func NewProfileHandler(profiles *profile.Directory) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

func (h *ProfileHandler) Get(c *gin.Context) {
	p, err := h.profiles.Lookup(c.Request.Context(), callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type saveProfileReq struct {
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
	Role     string `json:"role" binding:"required"`
	FCMToken string `json:"fcmToken"`
}

func (h *ProfileHandler) Save(c *gin.Context) {
	var req saveProfileReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.profiles.Save(c.Request.Context(), profile.SaveCommand{
		UID:      callerID(c),
		Name:     req.Name,
		Phone:    req.Phone,
		Role:     profile.Role(req.Role),
		FCMToken: req.FCMToken,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}
