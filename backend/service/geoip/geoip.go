package geoip

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"halo/backend/service/shared"
)

// Service 离线 geo-IP 区间表的加载与压缩。
//
// 区间表从离线文件解析一次，派生结果缓存到配置目录（缓存一旦存在
// 即永久有效，不做过期检查）。加载完全在后台进行，失败只记日志；
// 压缩出的通配符集合通过 Wildcards 暴露给将来的接入方。
type Service struct {
	configDir string

	mu        sync.RWMutex
	ranges    []Range
	wildcards []string
	loaded    bool
}

// NewService 创建加载器；configDir 为空时使用平台默认配置目录
func NewService(configDir string) *Service {
	if configDir == "" {
		configDir = shared.ConfigDir()
	}
	return &Service{configDir: configDir}
}

// LoadInBackground 启动后台加载，立即返回
func (s *Service) LoadInBackground() {
	go s.load()
}

func (s *Service) load() {
	start := time.Now()

	ranges, source, err := s.loadRanges()
	if err != nil {
		log.Printf("[GeoIP] load failed: %v", err)
		return
	}

	wildcards := ConvertRangesToWildcards(ranges)

	s.mu.Lock()
	s.ranges = ranges
	s.wildcards = wildcards
	s.loaded = true
	s.mu.Unlock()

	log.Printf("[GeoIP] loaded %d ranges from %s, %d wildcards (%s)",
		len(ranges), source, len(wildcards), time.Since(start).Round(time.Millisecond))
}

// loadRanges 优先读缓存；缓存缺失或损坏时解析离线列表并重建缓存
func (s *Service) loadRanges() ([]Range, string, error) {
	cachePath := filepath.Join(s.configDir, shared.ChinaIPCacheFile)
	if ranges, err := loadCache(cachePath); err == nil {
		return ranges, "cache", nil
	}

	listPath, err := s.findListFile()
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(listPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	ranges := ParseRangeList(f)
	if len(ranges) == 0 {
		return nil, "", fmt.Errorf("no usable ranges in %s", listPath)
	}

	if err := saveCache(cachePath, ranges); err != nil {
		log.Printf("[GeoIP] cache write failed: %v", err)
	}
	return ranges, listPath, nil
}

// findListFile 在程序目录和配置目录中查找离线区间表
func (s *Service) findListFile() (string, error) {
	candidates := []string{
		filepath.Join(shared.AppDir(), shared.ChinaIPListFile),
		filepath.Join(s.configDir, shared.ChinaIPListFile),
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s not found in %v", shared.ChinaIPListFile, candidates)
}

// Ready 区间表是否已加载完成
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Wildcards 返回压缩后的通配符集合；未加载完成时返回空
func (s *Service) Wildcards() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.wildcards))
	copy(out, s.wildcards)
	return out
}

// RangeCount 已加载的区间数量
func (s *Service) RangeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ranges)
}

// ParseRangeList 解析离线区间表。
// 每行 "起始IP 结束IP"，# 开头与空行跳过，坏行跳过不中断。
func ParseRangeList(r io.Reader) []Range {
	var ranges []Range
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		start, ok1 := parseIPv4(fields[0])
		end, ok2 := parseIPv4(fields[1])
		if !ok1 || !ok2 || start > end {
			continue
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

func parseIPv4(s string) (uint32, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), true
}

// 缓存文件结构：{timestamp, ranges: [[start,end],...]}
type cacheFile struct {
	Timestamp int64       `json:"timestamp"`
	Ranges    [][2]uint32 `json:"ranges"`
}

func loadCache(path string) ([]Range, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache cacheFile
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	if len(cache.Ranges) == 0 {
		return nil, fmt.Errorf("cache is empty")
	}
	ranges := make([]Range, 0, len(cache.Ranges))
	for _, pair := range cache.Ranges {
		ranges = append(ranges, Range{Start: pair[0], End: pair[1]})
	}
	return ranges, nil
}

func saveCache(path string, ranges []Range) error {
	pairs := make([][2]uint32, 0, len(ranges))
	for _, r := range ranges {
		pairs = append(pairs, [2]uint32{r.Start, r.End})
	}
	data, err := json.Marshal(cacheFile{Timestamp: time.Now().Unix(), Ranges: pairs})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
