package config

import (
	"encoding/xml"
	"fmt"
	"os"
)

var MainRouter string
var DSN string
var DataDir string
var Dbname string
var MainConfig Config

type Config struct {
	XMLName    xml.Name `xml:"config"`
	MainRouter string   `xml:"MainRouter"`
	DataDir    string   `xml:"DataDir"`
	Dbname     string   `xml:"dbname"`
	Host       string   `xml:"host"`
	Port       string   `xml:"port"`
	Username   string   `xml:"user"`
	Password   string   `xml:"password"`
}

func init() {

	xmlFile, err := os.Open("config.xml")
	if err != nil {
		fmt.Println("Error  opening  file:", err)
		applyDefaults()
		return
	}
	defer xmlFile.Close()

	xmlDecoder := xml.NewDecoder(xmlFile)
	err = xmlDecoder.Decode(&MainConfig)
	if err != nil {
		fmt.Println("Error  decoding  XML:", err)
		applyDefaults()
		return
	}
	applyDefaults()

	MainRouter = MainConfig.MainRouter
	DataDir = MainConfig.DataDir
	Dbname = MainConfig.Dbname

	DSN = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", MainConfig.Host, MainConfig.Username, MainConfig.Password, MainConfig.Dbname, MainConfig.Port)

}

// applyDefaults 配置缺省时的默认值，保证无config.xml也能本地启动
func applyDefaults() {
	if MainConfig.MainRouter == "" {
		MainConfig.MainRouter = "0.0.0.0:8000"
	}
	if MainConfig.DataDir == "" {
		MainConfig.DataDir = "data"
	}
	MainRouter = MainConfig.MainRouter
	DataDir = MainConfig.DataDir
}
