package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/normanking/lipsync/internal/anim"
	"github.com/normanking/lipsync/internal/idle"
	"github.com/normanking/lipsync/internal/lipsync"
	"github.com/normanking/lipsync/internal/phoneme"
)

type speakRequest struct {
	phoneme.Utterance
	Silences []phoneme.Interval `json:"silences"`
}

type phonemesRequest struct {
	Labels        []string `json:"labels" binding:"required"`
	TotalDuration float64  `json:"total_duration"`
}

type playbackRequest struct {
	Speed *float64 `json:"speed"`
	Loop  *bool    `json:"loop"`
}

type enableRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type paramRequest struct {
	Name  string   `json:"name" binding:"required"`
	Value *float64 `json:"value" binding:"required"`
}

func (s *Server) speak(c *gin.Context) {
	var req speakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.opts.Engine.Speak(req.Utterance, req.Silences)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, gin.H{"speech_id": id})
}

func (s *Server) phonemes(c *gin.Context) {
	var req phonemesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.opts.Engine.SpeakPhonemes(req.Labels, req.TotalDuration)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, gin.H{"speech_id": id})
}

// playClip accepts a clip document in either shape, or {"name": ...} to play
// a stored clip.
func (s *Server) playClip(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var ref struct {
		Name string `json:"name"`
	}
	var clip *anim.Clip
	if json.Unmarshal(body, &ref) == nil && ref.Name != "" && !hasClipContent(body) {
		clip, err = s.opts.Library.Load(ref.Name)
	} else {
		clip, err = anim.Decode(body, s.opts.Engine.Table(), s.opts.Engine.Settings().FPS)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	id, err := s.opts.Engine.PlayClip(clip)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, gin.H{"speech_id": id, "clip": clip.Name, "duration": clip.Duration})
}

func hasClipContent(body []byte) bool {
	var probe map[string]json.RawMessage
	if json.Unmarshal(body, &probe) != nil {
		return true
	}
	_, kf := probe["keyframes"]
	_, vf := probe["vowel_frames"]
	return kf || vf
}

func (s *Server) stop(c *gin.Context) {
	s.opts.Engine.Stop()
	respondSuccess(c, http.StatusOK, s.opts.Engine.Status())
}

func (s *Server) pause(c *gin.Context) {
	if err := s.opts.Engine.Pause(); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, s.opts.Engine.Status())
}

func (s *Server) resume(c *gin.Context) {
	if err := s.opts.Engine.Resume(); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, s.opts.Engine.Status())
}

func (s *Server) playback(c *gin.Context) {
	var req playbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Speed != nil {
		s.opts.Engine.SetSpeed(*req.Speed)
	}
	if req.Loop != nil {
		s.opts.Engine.SetLoop(*req.Loop)
	}
	respondSuccess(c, http.StatusOK, s.opts.Engine.Status())
}

func (s *Server) startRealtime(c *gin.Context) {
	if s.opts.OpenSource == nil {
		respondError(c, http.StatusNotImplemented, "realtime input is not configured")
		return
	}
	src, err := s.opts.OpenSource()
	if err != nil {
		s.fail(c, err)
		return
	}
	id, err := s.opts.Engine.StartRealtime(s.opts.Context, src)
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusAccepted, gin.H{"session_id": id})
}

func (s *Server) stopRealtime(c *gin.Context) {
	stopped := s.opts.Engine.StopRealtime()
	respondSuccess(c, http.StatusOK, gin.H{"stopped": stopped})
}

func (s *Server) idleStatus(c *gin.Context) {
	respondSuccess(c, http.StatusOK, s.opts.Idle.Status())
}

func (s *Server) enableIdle(c *gin.Context) {
	kind, err := idle.ParseKind(c.Param("kind"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Idle.Enable(kind, *req.Enabled); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, s.opts.Idle.Status())
}

func (s *Server) idleParam(c *gin.Context) {
	if _, err := idle.ParseKind(c.Param("kind")); err != nil {
		s.fail(c, err)
		return
	}
	var req paramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Idle.SetParam(req.Name, *req.Value); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, s.opts.Idle.Status())
}

func (s *Server) baseIdle(c *gin.Context) {
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.opts.Idle.SetBaseIdleMotion(*req.Enabled)
	respondSuccess(c, http.StatusOK, s.opts.Idle.Status())
}

func (s *Server) pauseWind(c *gin.Context) {
	s.opts.Idle.PauseWind()
	respondSuccess(c, http.StatusOK, s.opts.Idle.Status())
}

func (s *Server) resumeWind(c *gin.Context) {
	s.opts.Idle.ResumeWind()
	respondSuccess(c, http.StatusOK, s.opts.Idle.Status())
}

func (s *Server) listClips(c *gin.Context) {
	clips, err := s.opts.Library.List()
	if err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, clips)
}

// getClip returns the stored clip in the dense keyframe shape as YAML.
func (s *Server) getClip(c *gin.Context) {
	clip, err := s.opts.Library.Load(c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	data, err := anim.Encode(clip)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/yaml", data)
}

func (s *Server) saveClip(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	clip, err := anim.Decode(body, s.opts.Engine.Table(), s.opts.Engine.Settings().FPS)
	if err != nil {
		s.fail(c, err)
		return
	}
	name := c.Param("name")
	if err := s.opts.Library.Save(name, clip); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"name": name, "keyframes": len(clip.Keyframes), "duration": clip.Duration})
}

func (s *Server) deleteClip(c *gin.Context) {
	if err := s.opts.Library.Delete(c.Param("name")); err != nil {
		s.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"name": c.Param("name")})
}

func (s *Server) getSettings(c *gin.Context) {
	respondSuccess(c, http.StatusOK, s.opts.Engine.Settings())
}

func (s *Server) updateSettings(c *gin.Context) {
	var u lipsync.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.opts.Engine.UpdateSettings(u.Apply(s.opts.Engine.Settings())); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	settings := s.opts.Engine.Settings()
	if s.opts.OnSettings != nil {
		s.opts.OnSettings(settings)
	}
	respondSuccess(c, http.StatusOK, settings)
}

type statusResponse struct {
	LipSync lipsync.Status `json:"lipsync"`
	Idle    idle.Status    `json:"idle"`
	Viewers []string       `json:"viewers"`
}

func (s *Server) status(c *gin.Context) {
	resp := statusResponse{
		LipSync: s.opts.Engine.Status(),
		Idle:    s.opts.Idle.Status(),
		Viewers: []string{},
	}
	if s.opts.Hub != nil {
		resp.Viewers = s.opts.Hub.Clients()
	}
	respondSuccess(c, http.StatusOK, resp)
}

func (s *Server) logs(c *gin.Context) {
	if s.opts.Logs == nil {
		respondSuccess(c, http.StatusOK, []any{})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		respondError(c, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	respondSuccess(c, http.StatusOK, s.opts.Logs.GetHistory(limit))
}
