package mapper

import (
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
)

type JobMapper struct{}

func NewJobMapper() *JobMapper {
	return &JobMapper{}
}

func (m *JobMapper) JobToEntity(j *model.GenerationJob) *entity.GenerationJob {
	if j == nil {
		return nil
	}
	return &entity.GenerationJob{
		Id:               j.Id,
		ThreadId:         j.ThreadId,
		ProviderId:       j.ProviderId,
		ModelId:          j.ModelId,
		State:            entity.JobState(j.State),
		InputMessageId:   j.InputMessageId,
		OutputMessageId:  j.OutputMessageId,
		ExternalJobId:    j.ExternalJobId,
		ProviderData:     toMap(j.ProviderData),
		GenerationInputs: toMap(j.GenerationInputs),
		RetryCount:       j.RetryCount,
		MaxRetries:       j.MaxRetries,
		QueuedAt:         j.QueuedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func (m *JobMapper) JobToModel(j *entity.GenerationJob) *model.GenerationJob {
	if j == nil {
		return nil
	}
	return &model.GenerationJob{
		Id:               j.Id,
		ThreadId:         j.ThreadId,
		ProviderId:       j.ProviderId,
		ModelId:          j.ModelId,
		State:            string(j.State),
		InputMessageId:   j.InputMessageId,
		OutputMessageId:  j.OutputMessageId,
		ExternalJobId:    j.ExternalJobId,
		ProviderData:     toJSON(j.ProviderData),
		GenerationInputs: toJSON(j.GenerationInputs),
		RetryCount:       j.RetryCount,
		MaxRetries:       j.MaxRetries,
		QueuedAt:         j.QueuedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func (m *JobMapper) JobsToEntities(models []*model.GenerationJob) []*entity.GenerationJob {
	out := make([]*entity.GenerationJob, len(models))
	for i, j := range models {
		out[i] = m.JobToEntity(j)
	}
	return out
}

func (m *JobMapper) QueueToEntity(q *model.GenerationQueue) *entity.GenerationQueue {
	if q == nil {
		return nil
	}
	return &entity.GenerationQueue{
		Id:                q.Id,
		ModelId:           q.ModelId,
		Enabled:           q.Enabled,
		MaxConcurrentJobs: q.MaxConcurrentJobs,
		AutoRetryFailed:   q.AutoRetryFailed,
		RetryDelayMinutes: q.RetryDelayMinutes,
		LastProcessedAt:   q.LastProcessedAt,
		CreatedAt:         q.CreatedAt,
	}
}

func (m *JobMapper) QueueToModel(q *entity.GenerationQueue) *model.GenerationQueue {
	if q == nil {
		return nil
	}
	return &model.GenerationQueue{
		Id:                q.Id,
		ModelId:           q.ModelId,
		Enabled:           q.Enabled,
		MaxConcurrentJobs: q.MaxConcurrentJobs,
		AutoRetryFailed:   q.AutoRetryFailed,
		RetryDelayMinutes: q.RetryDelayMinutes,
		LastProcessedAt:   q.LastProcessedAt,
		CreatedAt:         q.CreatedAt,
	}
}
