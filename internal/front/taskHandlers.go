package front

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/authmw"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/utils"
)

func paramID(c *gin.Context, v *tasksync.View, name string) (int64, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}
	return id, true
}

// confirmedBy reads the confirmation of a destructive action from ?confirm=true.
func confirmedBy(c *gin.Context) tasksync.Confirm {
	return func(string) bool { return c.Query("confirm") == "true" }
}

func bindTaskForm(c *gin.Context, v *tasksync.View) (taskForm, bool) {
	var f taskForm
	if err := c.ShouldBind(&f); err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": "bad data"})
		return f, false
	}
	if err := f.validate(); err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return f, false
	}
	return f, true
}

// tasks

func handleListTasks(c *gin.Context) {
	v := viewOf(c)
	projectID, ok := paramID(c, v, "project")
	if !ok {
		return
	}

	tasks, err := v.Syncer.RefreshTasks(c.Request.Context(), projectID)
	body := gin.H{"tasks": nonNil(tasks)}
	if err != nil {
		body["error"] = err.Error()
	}
	reply(c, v, http.StatusOK, body)
}

func handleCreateTask(c *gin.Context) {
	v := viewOf(c)
	projectID, ok := paramID(c, v, "project")
	if !ok {
		return
	}
	f, ok := bindTaskForm(c, v)
	if !ok {
		return
	}
	files, done, err := attachments(c, "file_url")
	if err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer done()

	id, err := v.Mutator.CreateTask(c.Request.Context(), tasksync.TaskDraft{
		ProjectID:      projectID,
		Title:          f.Title,
		Description:    f.Description,
		Status:         tasksync.Status(f.Status),
		Priority:       tasksync.Priority(f.Priority),
		Deadline:       tasksync.ParseTimestamp(f.Deadline),
		EstimatedHours: f.EstimatedHours,
		Files:          files,
	})
	if err != nil {
		replyError(c, v, err)
		return
	}
	reply(c, v, http.StatusCreated, gin.H{"id": id})
}

func handleUpdateTask(c *gin.Context) {
	v := viewOf(c)
	id, ok := paramID(c, v, "id")
	if !ok {
		return
	}
	f, ok := bindTaskForm(c, v)
	if !ok {
		return
	}
	files, done, err := attachments(c, "file_url")
	if err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer done()

	projectID := f.ProjectID
	if t, cached := v.Store.Task(id); cached && projectID == 0 {
		projectID = t.ProjectID
	}

	err = v.Mutator.UpdateTask(c.Request.Context(), id, tasksync.TaskEdit{
		ProjectID:           projectID,
		Title:               f.Title,
		Description:         f.Description,
		Status:              tasksync.Status(f.Status),
		Priority:            tasksync.Priority(f.Priority),
		Deadline:            tasksync.ParseTimestamp(f.Deadline),
		EstimatedHours:      f.EstimatedHours,
		AttachmentsEditable: f.AttachmentsEditable,
		Files:               files,
	})
	if err != nil {
		replyError(c, v, err)
		return
	}
	task, _ := v.Store.Task(id)
	reply(c, v, http.StatusOK, gin.H{"task": task})
}

func handleDeleteTask(c *gin.Context) {
	v := viewOf(c)
	id, ok := paramID(c, v, "id")
	if !ok {
		return
	}

	if err := v.Mutator.DeleteTask(c.Request.Context(), id, confirmedBy(c)); err != nil {
		replyError(c, v, err)
		return
	}
	reply(c, v, http.StatusOK, gin.H{"deleted": id})
}

// subtasks

func handleListSubtasks(c *gin.Context) {
	v := viewOf(c)
	taskID, ok := paramID(c, v, "id")
	if !ok {
		return
	}

	views, err := v.Syncer.RefreshSubtasks(c.Request.Context(), taskID)
	body := gin.H{"subtasks": nonNil(views)}
	if err != nil {
		body["error"] = err.Error()
	}
	reply(c, v, http.StatusOK, body)
}

func handleCreateSubtask(c *gin.Context) {
	v := viewOf(c)
	taskID, ok := paramID(c, v, "id")
	if !ok {
		return
	}
	f, ok := bindTaskForm(c, v)
	if !ok {
		return
	}
	files, done, err := attachments(c, "file_url")
	if err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer done()

	id, err := v.Mutator.CreateSubtask(c.Request.Context(), tasksync.SubtaskDraft{
		TaskID:         taskID,
		Title:          f.Title,
		Description:    f.Description,
		Status:         tasksync.Status(f.Status),
		Priority:       tasksync.Priority(f.Priority),
		Deadline:       tasksync.ParseTimestamp(f.Deadline),
		EstimatedHours: f.EstimatedHours,
		Files:          files,
	})
	if err != nil {
		replyError(c, v, err)
		return
	}
	reply(c, v, http.StatusCreated, gin.H{"id": id})
}

func handleUpdateSubtask(c *gin.Context) {
	v := viewOf(c)
	id, ok := paramID(c, v, "id")
	if !ok {
		return
	}
	f, ok := bindTaskForm(c, v)
	if !ok {
		return
	}
	files, done, err := attachments(c, "file_url")
	if err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer done()

	taskID := f.TaskID
	if cur, cached := v.Store.Subtask(id); cached && taskID == 0 {
		taskID = cur.TaskID
	}

	err = v.Mutator.UpdateSubtask(c.Request.Context(), id, tasksync.SubtaskEdit{
		TaskID:              taskID,
		Title:               f.Title,
		Description:         f.Description,
		Status:              tasksync.Status(f.Status),
		Priority:            tasksync.Priority(f.Priority),
		Deadline:            tasksync.ParseTimestamp(f.Deadline),
		EstimatedHours:      f.EstimatedHours,
		AttachmentsEditable: f.AttachmentsEditable,
		Files:               files,
	})
	if err != nil {
		replyError(c, v, err)
		return
	}
	sub, _ := v.Store.Subtask(id)
	reply(c, v, http.StatusOK, gin.H{"subtask": sub})
}

func handleDeleteSubtask(c *gin.Context) {
	v := viewOf(c)
	id, ok := paramID(c, v, "id")
	if !ok {
		return
	}

	if err := v.Mutator.DeleteSubtask(c.Request.Context(), id, confirmedBy(c)); err != nil {
		replyError(c, v, err)
		return
	}
	reply(c, v, http.StatusOK, gin.H{"deleted": id})
}

func handleAssignSubtask(c *gin.Context) {
	v := viewOf(c)
	id, ok := paramID(c, v, "id")
	if !ok {
		return
	}
	var r assignRequest
	if err := c.ShouldBind(&r); err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	users := v.Store.Users()
	if len(users) == 0 {
		users, _ = v.Syncer.RefreshUsers(c.Request.Context())
	}
	var assignee *tasksync.User
	for i := range users {
		if users[i].ID == r.UserID {
			assignee = &users[i]
			break
		}
	}
	if assignee == nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": "user cannot be assigned"})
		return
	}

	err := v.Mutator.AssignSubtask(c.Request.Context(), tasksync.Assignment{TaskID: r.TaskID, SubtaskID: id, User: *assignee})
	if err != nil {
		replyError(c, v, err)
		return
	}
	sub, _ := v.Store.Subtask(id)
	reply(c, v, http.StatusOK, gin.H{"subtask": sub})
}

// users

func handleListUsers(c *gin.Context) {
	v := viewOf(c)
	users, err := v.Syncer.RefreshUsers(c.Request.Context())
	if err != nil && len(users) == 0 {
		replyError(c, v, err)
		return
	}
	reply(c, v, http.StatusOK, gin.H{"users": nonNil(users)})
}

// chat

func handleLoadChat(c *gin.Context) {
	v := viewOf(c)
	projectID, ok := paramID(c, v, "project")
	if !ok {
		return
	}

	msgs, err := v.Chat.Load(c.Request.Context(), projectID)
	body := gin.H{"messages": nonNil(msgs), "draft": v.Store.Draft(projectID)}
	if err != nil {
		body["error"] = err.Error()
	}
	reply(c, v, http.StatusOK, body)
}

func handleSendChat(c *gin.Context) {
	v := viewOf(c)
	projectID, ok := paramID(c, v, "project")
	if !ok {
		return
	}
	var f chatForm
	if err := c.ShouldBind(&f); err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": "bad data"})
		return
	}
	files, done, err := attachments(c, "file")
	if err != nil {
		reply(c, v, http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer done()

	send := tasksync.ChatSend{
		ProjectID:  projectID,
		SenderID:   f.SenderID,
		SenderName: authmw.DisplayName(c),
		Message:    f.Message,
	}
	if len(files) > 0 {
		send.File = &files[0]
	}

	if err := v.Chat.Send(c.Request.Context(), send); err != nil {
		reply(c, v, statusFor(err), gin.H{
			"error":    err.Error(),
			"draft":    v.Store.Draft(projectID),
			"messages": nonNil(v.Store.Chat(projectID)),
		})
		return
	}
	reply(c, v, http.StatusAccepted, gin.H{"messages": nonNil(v.Store.Chat(projectID))})
}
