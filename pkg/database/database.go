package database

import (
	"edu_gap_analytics/internal/config"
	"edu_gap_analytics/internal/model"
	"fmt"
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.PerformanceRecord{},
		&model.Concept{},
		&model.ConceptAssessment{},
		&model.LearningGap{},
		&model.GapAnalysis{},
		&model.TrainingRun{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// 默认概念库（为空时写入常用 CS 概念）
	var conceptCount int64
	db.Model(&model.Concept{}).Count(&conceptCount)
	if conceptCount == 0 {
		defaultConcepts := []model.Concept{
			{ConceptID: "variables", Name: "变量", Description: "变量声明与赋值", Difficulty: 1, Keywords: []string{"variable", "assignment", "declaration"}, Enabled: true},
			{ConceptID: "control_flow", Name: "控制流", Description: "条件与分支", Difficulty: 1, Keywords: []string{"if", "else", "switch", "condition"}, Enabled: true},
			{ConceptID: "loops", Name: "循环", Description: "for/while 循环", Difficulty: 2, Keywords: []string{"for", "while", "iteration"}, Enabled: true},
			{ConceptID: "functions", Name: "函数", Description: "函数定义与调用", Difficulty: 2, Keywords: []string{"function", "parameter", "return"}, Enabled: true},
			{ConceptID: "recursion", Name: "递归", Description: "递归与分治", Difficulty: 3, Keywords: []string{"recursion", "base case", "divide"}, Enabled: true},
			{ConceptID: "pointers", Name: "指针", Description: "指针与地址访问", Difficulty: 3, Keywords: []string{"pointer", "address", "dereference"}, Enabled: true},
			{ConceptID: "data_structures", Name: "数据结构", Description: "数组/链表/哈希表", Difficulty: 3, Keywords: []string{"array", "list", "map", "stack"}, Enabled: true},
			{ConceptID: "algorithms", Name: "算法", Description: "排序与查找", Difficulty: 4, Keywords: []string{"sort", "search", "complexity"}, Enabled: true},
		}
		for _, c := range defaultConcepts {
			db.Create(&c)
		}
	}

	return db, nil
}
