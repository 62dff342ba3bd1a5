package memory

import (
	"errors"
	"sync"

	"github.com/qrave1/voicegrid/internal/application/metric"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

var ErrNoJanusNodes = errors.New("no janus nodes available")

// JanusNodeRepository - инвентарь SFU нод процесса. Счетчики каналов живут только в памяти
// и меняются только через Acquire/Release.
type JanusNodeRepository interface {
	// Replace подменяет список нод, сохраняя счетчики нод с теми же именами
	Replace(nodes []models.JanusNode)

	// Acquire выбирает ноду с наименьшим числом каналов и сразу увеличивает ее счетчик
	Acquire() (models.JanusNode, error)
	// Assign увеличивает счетчик конкретной ноды
	Assign(name string) (models.JanusNode, bool)
	// Release уменьшает счетчик, не опуская его ниже нуля
	Release(name string)

	Get(name string) (models.JanusNode, bool)
	List() []models.JanusNode
}

type janusNodeRepository struct {
	nodes []*models.JanusNode
	mu    sync.Mutex
}

func NewJanusNodeRepository() JanusNodeRepository {
	return &janusNodeRepository{}
}

func (r *janusNodeRepository) Replace(nodes []models.JanusNode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int, len(r.nodes))
	for _, node := range r.nodes {
		counts[node.Name] = node.ChannelCount
	}

	r.nodes = make([]*models.JanusNode, 0, len(nodes))
	for _, node := range nodes {
		n := node
		n.ChannelCount = counts[n.Name]
		r.nodes = append(r.nodes, &n)

		metric.SetJanusNodeChannels(n.Name, n.ChannelCount)
	}
}

func (r *janusNodeRepository) Acquire() (models.JanusNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.nodes) == 0 {
		return models.JanusNode{}, ErrNoJanusNodes
	}

	// при равенстве побеждает нода, стоящая раньше в списке
	best := r.nodes[0]
	for _, node := range r.nodes[1:] {
		if node.ChannelCount < best.ChannelCount {
			best = node
		}
	}

	best.ChannelCount++
	metric.SetJanusNodeChannels(best.Name, best.ChannelCount)

	return *best, nil
}

func (r *janusNodeRepository) Assign(name string) (models.JanusNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.findLocked(name)
	if node == nil {
		return models.JanusNode{}, false
	}

	node.ChannelCount++
	metric.SetJanusNodeChannels(node.Name, node.ChannelCount)

	return *node, true
}

func (r *janusNodeRepository) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.findLocked(name)
	if node == nil || node.ChannelCount == 0 {
		return
	}

	node.ChannelCount--
	metric.SetJanusNodeChannels(node.Name, node.ChannelCount)
}

func (r *janusNodeRepository) Get(name string) (models.JanusNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node := r.findLocked(name)
	if node == nil {
		return models.JanusNode{}, false
	}

	return *node, true
}

func (r *janusNodeRepository) List() []models.JanusNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]models.JanusNode, 0, len(r.nodes))
	for _, node := range r.nodes {
		result = append(result, *node)
	}

	return result
}

func (r *janusNodeRepository) findLocked(name string) *models.JanusNode {
	for _, node := range r.nodes {
		if node.Name == name {
			return node
		}
	}

	return nil
}
