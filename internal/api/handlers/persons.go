package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/attendance"
	"github.com/your-org/presence/internal/identity"
	"github.com/your-org/presence/internal/imaging"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/pkg/dto"
)

type PersonHandler struct {
	svc *attendance.Service
	db  *storage.PostgresStore
}

func NewPersonHandler(svc *attendance.Service, db *storage.PostgresStore) *PersonHandler {
	return &PersonHandler{svc: svc, db: db}
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req dto.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := h.db.CreatePerson(c.Request.Context(), req.RegisterNumber, req.Name)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicatePerson) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, dto.PersonFromModel(person))
}

func (h *PersonHandler) List(c *gin.Context) {
	persons, err := h.db.ListPersons(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		resp = append(resp, dto.PersonFromModel(&persons[i]))
	}
	c.JSON(http.StatusOK, gin.H{"persons": resp})
}

func (h *PersonHandler) Get(c *gin.Context) {
	person, err := h.db.GetPerson(c.Request.Context(), c.Param("register"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}
	c.JSON(http.StatusOK, dto.PersonFromModel(person))
}

// Enroll replaces a person's embedding from an uploaded photo.
func (h *PersonHandler) Enroll(c *gin.Context) {
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCaptureBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read image: " + err.Error()})
		return
	}

	img, err := imaging.Decode(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "undecodable image"})
		return
	}

	person, err := h.svc.EnrollPerson(c.Request.Context(), c.Param("register"), img)
	if err != nil {
		switch {
		case errors.Is(err, attendance.ErrPersonNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, identity.ErrNoFaceDetected):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, dto.PersonFromModel(person))
}

// Deactivate removes a person from matching without deleting their history.
func (h *PersonHandler) Deactivate(c *gin.Context) {
	if err := h.db.SetPersonActive(c.Request.Context(), c.Param("register"), false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// Activate returns a deactivated person to the matching pool.
func (h *PersonHandler) Activate(c *gin.Context) {
	if err := h.db.SetPersonActive(c.Request.Context(), c.Param("register"), true); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}
